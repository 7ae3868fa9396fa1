package httpclient

import (
	"net/http"
	"time"
)

// sharedTransport is reused by every outbound adapter client.
var sharedTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        64,
	MaxIdleConnsPerHost: 16,
	IdleConnTimeout:     120 * time.Second,
	ForceAttemptHTTP2:   true,
	DisableKeepAlives:   false,
}

// NewPooledClient creates an http.Client with a total request timeout on the shared pool.
func NewPooledClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: sharedTransport,
	}
}

// NewStreamingClient creates a client without a total timeout for long-lived
// streaming responses. Callers bound them through the request context.
func NewStreamingClient() *http.Client {
	return &http.Client{
		Transport: sharedTransport,
	}
}
