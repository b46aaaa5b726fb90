package htmlutil

import (
	"regexp"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const page = `<html><head>
<script src="/static/app.js"></script>
<script>
  var lang = "sk";
  var ticket_id = "99812";
  var article_id = 273;
</script>
</head><body>
<form>
  <input type="hidden" name="csrfmiddlewaretoken" value="abc123">
  <input type="hidden" name="empty" value="">
</form>
<div class="lot">
   A
     12
</div>
</body></html>`

func parse(t *testing.T) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	return doc
}

func TestScriptMatch(t *testing.T) {
	doc := parse(t)

	ticket, ok := ScriptMatch(doc, regexp.MustCompile(`var ticket_id = "(\d+)";`))
	require.True(t, ok)
	require.Equal(t, "99812", ticket)

	_, ok = ScriptMatch(doc, regexp.MustCompile(`var missing = (\d+);`))
	require.False(t, ok)
}

func TestInputValue(t *testing.T) {
	doc := parse(t)

	token, ok := InputValue(doc, "csrfmiddlewaretoken")
	require.True(t, ok)
	require.Equal(t, "abc123", token)

	_, ok = InputValue(doc, "empty")
	require.False(t, ok)
	_, ok = InputValue(doc, "nope")
	require.False(t, ok)
}

func TestCleanText(t *testing.T) {
	doc := parse(t)
	require.Equal(t, "A 12", CleanText(doc.Find(".lot")))
}
