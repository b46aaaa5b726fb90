package portal

import (
	"bytes"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"time"

	"parkpro-backend/internal/components/assert"
	"parkpro-backend/internal/components/telemetry"
	"parkpro-backend/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_login          = "client.login"
	report_client_fetch_calendar = "client.fetch-calendar"
	report_client_submit_command = "client.submit-command"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Client knows the portal's urls and page layout, it holds no session state.
// Every method takes the resty client (and so the cookie jar) of the session
// it acts for.
type Client struct {
	config  Config
	baseUrl *url.URL
	tel     telemetry.API
	dump    restyutil.Output
}

// NewClient creates a portal client, `dump` may be nil, otherwise every http
// exchange of every session is written to it.
func NewClient(config Config, tel telemetry.API, dump restyutil.Output) (Client, error) {
	assert.NotNil(tel, "telemetry")

	config = config.withDefaults()
	baseUrl, err := url.Parse(config.BaseUrl)
	if err != nil {
		return Client{}, fmt.Errorf("parse portal base url: %w", err)
	}
	return Client{
		config:  config,
		baseUrl: baseUrl,
		tel:     telemetry.NewScopedAPI("portal", tel),
		dump:    dump,
	}, nil
}

// NewHttpClient creates the http client of a single session, with its own
// cookie jar and rate limit.
func (c Client) NewHttpClient(name string) (*resty.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(c.config.BaseUrl)
	httpClient.SetCookieJar(jar)
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)

	httpClient.SetHeader("user-agent", userAgent)
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(c.baseUrl.Hostname()))
	httpClient.SetTimeout(time.Duration(c.config.TimeoutSeconds) * time.Second)

	// max burst >= requests per second just means that no requests will be dropped
	burst := int(c.config.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	rateLimiter := rate.NewLimiter(rate.Limit(c.config.RequestsPerSecond), burst)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, "parkpro.portal", c.tel)
	if c.dump != nil {
		restyutil.DumpExchanges(httpClient, name, c.dump)
	}

	return httpClient, nil
}

// ResetJar gives the http client an empty cookie jar.
func (c Client) ResetJar(httpClient *resty.Client) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	httpClient.SetCookieJar(jar)
	return nil
}

func (c Client) cookie(httpClient *resty.Client, name string) string {
	jar := httpClient.GetClient().Jar
	if jar == nil {
		return ""
	}
	for _, cookie := range jar.Cookies(c.baseUrl) {
		if cookie.Name == name {
			return cookie.Value
		}
	}
	return ""
}

func parseDocument(res *resty.Response) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
}

// finalPath is the path of the last request after redirects.
func finalPath(res *resty.Response) string {
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		return res.RawResponse.Request.URL.Path
	}
	return ""
}

func hasLoginForm(doc *goquery.Document) bool {
	return doc.Find("input[name=password]").Length() > 0
}

var (
	longTicketIDRegex = regexp.MustCompile(`var ticket_id = "(\d+)";`)
	articleIDRegex    = regexp.MustCompile(`var article_id = (\d+);`)
)
