package scrape

import (
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/resilience"
)

// LocalFetcher fetches HTML via net/http and converts it to plaintext.
// Fast and free, but blind to script-rendered content; the chain escalates
// to the rendered fetcher when the result is too thin.
type LocalFetcher struct {
	client *http.Client
}

// NewLocalFetcher creates a LocalFetcher with the given request timeout.
func NewLocalFetcher(timeout time.Duration) *LocalFetcher {
	return &LocalFetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

func (l *LocalFetcher) Name() string { return "local_http" }

// Fetch retrieves a URL and strips its HTML to plaintext. Rate limits and
// transient network failures get one retry before the chain escalates.
func (l *LocalFetcher) Fetch(ctx context.Context, targetURL string) (string, error) {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = 2
	cfg.InitialBackoff = time.Second
	cfg.OnRetry = func(attempt int, err error) {
		zap.L().Debug("local_http: retrying fetch",
			zap.String("url", targetURL), zap.Int("attempt", attempt), zap.Error(err))
	}
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (string, error) {
		return l.fetchOnce(ctx, targetURL)
	})
}

func (l *LocalFetcher) fetchOnce(ctx context.Context, targetURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, normalizeURL(targetURL), nil)
	if err != nil {
		return "", eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; LeadsBot/1.0)")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		statusErr := eris.Errorf("local_http: status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return "", statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return "", eris.Wrap(err, "local_http: read body")
	}

	return stripHTML(string(body)), nil
}

// stripHTML removes script/style/noscript blocks, strips tags, decodes
// entities, and collapses whitespace into single spaces.
func stripHTML(html string) string {
	for _, tag := range []string{"script", "style", "noscript"} {
		re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
		html = re.ReplaceAllString(html, " ")
	}

	tagRe := regexp.MustCompile(`<[^>]+>`)
	html = tagRe.ReplaceAllString(html, " ")

	r := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	html = r.Replace(html)

	spaceRe := regexp.MustCompile(`\s+`)
	html = spaceRe.ReplaceAllString(html, " ")

	return strings.TrimSpace(html)
}
