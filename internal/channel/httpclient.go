package channel

import (
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMediaTimeout = 60 * time.Second
)

// SharedHTTPClient returns an HTTP client with connection pooling and an
// overall timeout, so a hung remote call cannot block indefinitely.
func SharedHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// newRESTClient builds a resty client with exponential backoff on transient
// failures. GETs retry on 5xx and 429; other methods only on 429 so a send
// the platform may have accepted is not duplicated.
func newRESTClient(baseURL string, timeout time.Duration, maxRetries int) *resty.Client {
	if maxRetries < 0 {
		maxRetries = 0
	}
	c := resty.NewWithClient(SharedHTTPClient(timeout)).
		SetBaseURL(baseURL).
		SetRetryCount(maxRetries).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(8*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "botgateway/1.0")
	c.AddRetryCondition(retryable)
	return c
}

func retryable(resp *resty.Response, err error) bool {
	if resp == nil {
		return false
	}
	status := resp.StatusCode()
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && resp.Request != nil && resp.Request.Method == http.MethodGet
}
