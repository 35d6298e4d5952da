package channel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"botgateway/internal/domain"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultGraphBaseURL = "https://graph.facebook.com"
	DefaultAPIVersion   = "v18.0"
)

// GraphConfig configures the Graph API dialect shared by the Meta providers.
type GraphConfig struct {
	BaseURL      string
	APIVersion   string
	Timeout      time.Duration
	MediaTimeout time.Duration
	MaxRetries   int

	// RequestsPerSecond paces every call made through one client. Zero
	// disables pacing.
	RequestsPerSecond float64

	Logger *slog.Logger
}

func (c GraphConfig) withDefaults() GraphConfig {
	if c.BaseURL == "" {
		c.BaseURL = DefaultGraphBaseURL
	}
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MediaTimeout <= 0 {
		c.MediaTimeout = defaultMediaTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// graphClient performs authenticated Graph API calls and maps failures onto
// the gateway's error taxonomy.
type graphClient struct {
	platform     domain.ChannelType
	rest         *resty.Client
	limiter      *rate.Limiter
	mediaTimeout time.Duration
	logger       *slog.Logger
}

func newGraphClient(platform domain.ChannelType, cfg GraphConfig) *graphClient {
	cfg = cfg.withDefaults()
	base := strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.Trim(cfg.APIVersion, "/")

	g := &graphClient{
		platform:     platform,
		rest:         newRESTClient(base, cfg.Timeout, cfg.MaxRetries),
		mediaTimeout: cfg.MediaTimeout,
		logger:       cfg.Logger,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return g
}

type graphErrorEnvelope struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		FBTraceID    string `json:"fbtrace_id"`
		ErrorData    struct {
			Details string `json:"details"`
		} `json:"error_data"`
	} `json:"error"`
}

// request returns a request bound to ctx and token, after pacing.
func (g *graphClient) request(ctx context.Context, token string) (*resty.Request, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req := g.rest.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	return req, nil
}

// call executes method on path. body is JSON-encoded when non-nil and out
// receives the decoded success response when non-nil.
func (g *graphClient) call(ctx context.Context, method, path, token string, query map[string]string, body, out any) error {
	req, err := g.request(ctx, token)
	if err != nil {
		return err
	}
	apiErr := &graphErrorEnvelope{}
	req.SetError(apiErr)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return &domain.NetworkError{Op: method + " " + path, Err: err}
	}
	if resp.IsError() {
		return g.remoteError(resp, apiErr)
	}
	return nil
}

func (g *graphClient) get(ctx context.Context, path, token string, query map[string]string, out any) error {
	return g.call(ctx, http.MethodGet, path, token, query, nil, out)
}

func (g *graphClient) post(ctx context.Context, path, token string, body, out any) error {
	return g.call(ctx, http.MethodPost, path, token, nil, body, out)
}

func (g *graphClient) remoteError(resp *resty.Response, env *graphErrorEnvelope) *domain.RemoteAPIError {
	e := &domain.RemoteAPIError{
		Platform:   g.platform,
		StatusCode: resp.StatusCode(),
		Code:       env.Error.Code,
		Subcode:    env.Error.ErrorSubcode,
		Message:    env.Error.Message,
		TraceID:    env.Error.FBTraceID,
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(resp.Body()))
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode())
	}
	if d := env.Error.ErrorData.Details; d != "" && !strings.Contains(e.Message, d) {
		e.Message += ": " + d
	}
	return e
}

// sendResult maps a send outcome onto the SendResult convention: platform
// rejections are results, everything else is also an error.
func sendResult(messageID string, err error) (domain.SendResult, error) {
	if err == nil {
		return domain.SendResult{Success: true, MessageID: messageID}, nil
	}
	var apiErr *domain.RemoteAPIError
	if errors.As(err, &apiErr) {
		return domain.SendResult{Success: false, Error: apiErr.Message}, nil
	}
	return domain.SendResult{Success: false, Error: err.Error()}, err
}

// validateToken performs a lightweight authenticated GET. It reports
// (false, nil) when the platform rejects the token.
func (g *graphClient) validateToken(ctx context.Context, path, token, fields string) (bool, error) {
	var out map[string]any
	err := g.get(ctx, path, token, map[string]string{"fields": fields}, &out)
	if err == nil {
		return true, nil
	}
	var apiErr *domain.RemoteAPIError
	if errors.As(err, &apiErr) {
		g.logger.Warn("credential check rejected", "provider", g.platform, "status", apiErr.StatusCode, "err", apiErr.Message)
		return false, nil
	}
	return false, err
}
