package htmlutil

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText returns the text content of a selection with non-printable
// characters removed and inner whitespace collapsed.
func CleanText(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, n := range sel.Nodes {
		getTextRecursive(n, &buffer)
	}
	text := removeNonPrintable(buffer.String())
	text = strings.TrimSpace(text)
	return innerWhitespace.ReplaceAllString(text, " ")
}

// ScriptMatch returns the first capture group of `pattern` found in any
// inline <script> of the document.
func ScriptMatch(doc *goquery.Document, pattern *regexp.Regexp) (string, bool) {
	if pattern.NumSubexp() < 1 {
		panic(fmt.Sprintf("pattern %s must have a capture group", pattern.String()))
	}

	var match string
	found := false
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		groups := pattern.FindStringSubmatch(GetText(s.Get(0)))
		if len(groups) < 2 {
			return true
		}
		match = groups[1]
		found = true
		return false
	})
	return match, found
}

// InputValue returns the value attribute of the first <input> with the given name.
func InputValue(doc *goquery.Document, name string) (string, bool) {
	value, ok := doc.Find(fmt.Sprintf("input[name=%q]", name)).First().Attr("value")
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
