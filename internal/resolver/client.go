// Package resolver turns a user-supplied media link into a RemoteDescriptor by
// asking the conversion service's passthrough proxy.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mixtape/mixtape/internal/constants"
	"github.com/mixtape/mixtape/internal/logging"
	"github.com/mixtape/mixtape/internal/models"
	"github.com/mixtape/mixtape/internal/ratelimit"
	"github.com/mixtape/mixtape/internal/validation"
	"github.com/mixtape/mixtape/internal/version"
)

const (
	resolvePath = "/api/getmp3"
	pingPath    = "/api/"

	maxErrorBody = 4 << 10
)

// ResolutionError is a link the service could not resolve. Msg is shown to
// the user verbatim. It is never retried automatically.
type ResolutionError struct {
	Link string
	Msg  string
}

func (e *ResolutionError) Error() string {
	return "could not resolve link: " + e.Msg
}

// IsResolutionError reports whether err is a *ResolutionError.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient is the proxy-aware base client. Retries are layered on top.
	HTTPClient *nethttp.Client
	Limiter    *ratelimit.RateLimiter
	RetryMax   int
	Logger     *logging.Logger
}

// Client calls the resolution proxy.
type Client struct {
	baseURL    string
	httpClient *nethttp.Client
	limiter    *ratelimit.RateLimiter
	logger     *logging.Logger
}

// retryLogger adapts the project logger to retryablehttp.LeveledLogger.
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Per-request chatter stays at debug
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

// NewClient creates a resolver client.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = constants.ResolverDefaultBaseURL
	}
	if u, err := url.Parse(base); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid resolver base URL: %q", opts.BaseURL)
	}

	logger := logging.OrNop(opts.Logger).Component("resolver")

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &nethttp.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = constants.ResolverTimeout
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = opts.RetryMax
	if retryClient.RetryMax < 0 {
		retryClient.RetryMax = 0
	}
	retryClient.RetryWaitMin = constants.RetryInitialDelay
	retryClient.RetryWaitMax = constants.RetryMaxDelay
	retryClient.Logger = &retryLogger{logger: logger}
	// Hand the last response back instead of a generic "giving up" error, so
	// the service's own message can be shown.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	std := retryClient.StandardClient()
	std.Timeout = timeout

	return &Client{
		baseURL:    base,
		httpClient: std,
		limiter:    opts.Limiter,
		logger:     logger,
	}, nil
}

// BaseURL returns the proxy base URL in use.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// response is the proxy's JSON body.
type response struct {
	Status   string   `json:"status"`
	Link     string   `json:"link"`
	Title    string   `json:"title"`
	FileSize flexSize `json:"filesize"`
	Progress float64  `json:"progress"`
	Duration float64  `json:"duration"`
	Msg      string   `json:"msg"`
}

// Resolve asks the service to resolve link. A non-ok status, a missing stream
// link or an unparsable body is a *ResolutionError carrying the service's
// message. Transport failures are returned as plain errors.
func (c *Client) Resolve(ctx context.Context, link string) (models.RemoteDescriptor, error) {
	link = strings.TrimSpace(link)
	if err := validation.ValidateLink(link); err != nil {
		return models.RemoteDescriptor{}, &ResolutionError{Link: link, Msg: err.Error()}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return models.RemoteDescriptor{}, fmt.Errorf("rate limiter cancelled: %w", err)
	}

	// The proxy reads everything after '?' as the encoded link
	endpoint := c.baseURL + resolvePath + "?" + url.QueryEscape(link)
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, endpoint, nil)
	if err != nil {
		return models.RemoteDescriptor{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	c.logger.Debug().Str("link", link).Msg("Resolving link")
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.RemoteDescriptor{}, fmt.Errorf("resolver request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.RemoteDescriptor{}, fmt.Errorf("failed to read resolver response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return models.RemoteDescriptor{}, fmt.Errorf("resolver unavailable: status %d: %s", resp.StatusCode, snippet(body))
	}
	if resp.StatusCode != nethttp.StatusOK {
		return models.RemoteDescriptor{}, &ResolutionError{Link: link, Msg: fmt.Sprintf("status %d: %s", resp.StatusCode, snippet(body))}
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		// The proxy answers some failures with plain text, e.g. "No Video ID"
		return models.RemoteDescriptor{}, &ResolutionError{Link: link, Msg: snippet(body)}
	}

	if r.Status != models.ResolutionOK {
		msg := r.Msg
		if msg == "" {
			msg = fmt.Sprintf("service returned status %q", r.Status)
		}
		return models.RemoteDescriptor{}, &ResolutionError{Link: link, Msg: msg}
	}
	if err := validation.ValidateLink(r.Link); err != nil {
		return models.RemoteDescriptor{}, &ResolutionError{Link: link, Msg: "service returned no usable stream link"}
	}

	d := models.RemoteDescriptor{
		SourceURL: link,
		StreamURL: strings.TrimSpace(r.Link),
		Title:     strings.TrimSpace(r.Title),
		SizeBytes: int64(r.FileSize),
		Duration:  r.Duration,
		Status:    r.Status,
	}
	if d.SizeBytes < 0 {
		d.SizeBytes = 0
	}

	c.logger.Info().
		Str("title", d.Title).
		Int64("size", d.SizeBytes).
		Dur("took", time.Since(start)).
		Msg("Link resolved")
	return d, nil
}

// Ping checks that the proxy is up.
func (c *Client) Ping(ctx context.Context) error {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, c.baseURL+pingPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("resolver unreachable: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))

	if resp.StatusCode != nethttp.StatusOK {
		return fmt.Errorf("resolver health check failed: status %d: %s", resp.StatusCode, snippet(body))
	}
	c.logger.Debug().Str("reply", snippet(body)).Msg("Resolver is up")
	return nil
}

// snippet makes a response body fit for an error message. Long bodies are
// cut on a rune boundary.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		n := maxErrorBody
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n] + "..."
	}
	if s == "" {
		return "empty response"
	}
	return s
}
