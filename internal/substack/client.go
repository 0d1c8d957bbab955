// Package substack implements the remote content client for a publication's
// archive, articles, and images.
package substack

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/bindstack/bindstack/internal/binder"
	"github.com/bindstack/bindstack/internal/metrics"
)

const sessionCookieName = "substack.sid"

// Config controls client behavior for one publication.
type Config struct {
	// Publication is the subdomain identifying the newsletter.
	Publication string
	// SessionCookie optionally authorizes access to gated content. The client
	// does not detect truncated paywalled content; an absent or stale cookie
	// is a data-quality condition, not an error.
	SessionCookie string
	// BaseURL overrides the derived https://{publication}.substack.com origin.
	// Tests point it at a local server.
	BaseURL string

	UserAgent    string
	BatchSize    int
	BatchDelay   time.Duration
	MaxRetries   int
	Timeout      time.Duration
	ImageTimeout time.Duration
}

// Client fetches publication content over HTTP using a shared Colly
// collector. It implements binder.ContentClient.
type Client struct {
	cfg           Config
	baseURL       string
	baseCollector *colly.Collector
	pause         pauseController
	logger        *zap.Logger
}

var extByMediaType = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
}

// New builds a Client bound to one publication for its lifetime.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = 15 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.substack.com", cfg.Publication)
	}
	baseURL = strings.TrimRight(baseURL, "/")

	c := colly.NewCollector(colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(newHTTPTransport())
	if cfg.SessionCookie != "" {
		// Scoped to the publication origin via the collector's cookie jar.
		if err := c.SetCookies(baseURL, []*http.Cookie{{
			Name:  sessionCookieName,
			Value: cfg.SessionCookie,
		}}); err != nil {
			logger.Warn("set session cookie failed", zap.Error(err))
		}
	}

	return &Client{
		cfg:           cfg,
		baseURL:       baseURL,
		baseCollector: c,
		pause:         &timerPauseController{},
		logger:        logger,
	}
}

// FetchArticle returns the raw HTML document for one post.
func (c *Client) FetchArticle(ctx context.Context, slug string) (string, error) {
	url := fmt.Sprintf("%s/p/%s", c.baseURL, slug)
	body, _, err := c.getWithRetry(ctx, "article", url, c.cfg.Timeout)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// FetchImage downloads an image binary. Any failure degrades to ok=false;
// a missing image never fails the surrounding item.
func (c *Client) FetchImage(ctx context.Context, url string) (binder.ImageAsset, bool) {
	body, contentType, err := c.getWithRetry(ctx, "image", url, c.cfg.ImageTimeout)
	if err != nil {
		c.logger.Debug("image fetch failed", zap.String("url", url), zap.Error(err))
		return binder.ImageAsset{}, false
	}
	mediaType := strings.TrimSpace(strings.Split(contentType, ";")[0])
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	ext, ok := extByMediaType[mediaType]
	if !ok {
		ext = ".jpg"
	}
	return binder.ImageAsset{Data: body, MediaType: mediaType, Ext: ext}, true
}

// getWithRetry performs a GET, retrying rate-limited responses with
// exponential backoff (2s, 4s, 8s). Once the retry budget is spent, one last
// attempt runs and its failure propagates as fatal.
func (c *Client) getWithRetry(ctx context.Context, kind, url string, timeout time.Duration) ([]byte, string, error) {
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		status, body, contentType, err := c.doGet(ctx, url, timeout)
		if err != nil {
			return nil, "", &binder.FetchError{URL: url, Err: err}
		}
		metrics.ObserveFetch(kind, status)
		if status == http.StatusTooManyRequests {
			wait := time.Duration(2<<attempt) * time.Second
			metrics.ObserveRateLimitDelay(wait)
			c.logger.Info("rate limited, backing off",
				zap.String("url", url),
				zap.Duration("wait", wait),
				zap.Int("attempt", attempt+1),
			)
			c.pause.Pause(ctx, wait)
			if ctx.Err() != nil {
				return nil, "", &binder.FetchError{URL: url, Err: ctx.Err()}
			}
			continue
		}
		if status < 200 || status >= 300 {
			return nil, "", &binder.FetchError{URL: url, StatusCode: status}
		}
		return body, contentType, nil
	}

	status, body, contentType, err := c.doGet(ctx, url, timeout)
	if err != nil {
		return nil, "", &binder.FetchError{URL: url, Err: err}
	}
	metrics.ObserveFetch(kind, status)
	if status == http.StatusTooManyRequests {
		return nil, "", &binder.RateLimitError{URL: url, Attempts: c.cfg.MaxRetries + 1}
	}
	if status < 200 || status >= 300 {
		return nil, "", &binder.FetchError{URL: url, StatusCode: status}
	}
	return body, contentType, nil
}

// doGet executes a single HTTP GET on a cloned collector, racing the visit
// against ctx. HTTP error statuses are returned as data, not errors.
func (c *Client) doGet(ctx context.Context, url string, timeout time.Duration) (int, []byte, string, error) {
	collector := c.baseCollector.Clone()
	collector.SetRequestTimeout(timeout)

	var (
		status      int
		body        []byte
		contentType string
		fetchErr    error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
		contentType = r.Headers.Get("Content-Type")
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			// Colly reports non-2xx responses through OnError; keep the
			// status so retry classification can see it.
			status = r.StatusCode
			body = append([]byte(nil), r.Body...)
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return 0, nil, "", fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return 0, nil, "", fetchErr
		}
		if status == 0 && err != nil {
			return 0, nil, "", fmt.Errorf("visit failed: %w", err)
		}
		return status, body, contentType, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
