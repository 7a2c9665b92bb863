// Package transport holds the shared HTTP transport tuning for outbound
// requests. Values favor long-lived SSE streams over raw request throughput.
package transport

import (
	"net"
	"net/http"
	"time"
)

const (
	maxIdleConns        = 100
	maxIdleConnsPerHost = 10
	idleConnTimeout     = 90 * time.Second
	tlsHandshakeTimeout = 10 * time.Second
	// Reasoning phases can run for minutes before the first byte arrives.
	responseHeaderTimeout = 10 * time.Minute
	dialTimeout           = 30 * time.Second
	keepAlive             = 30 * time.Second
)

// New returns a transport configured for streaming API traffic. Proxy settings
// come from the standard environment variables.
func New() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: keepAlive,
		}).DialContext,
		MaxIdleConns:          maxIdleConns,
		MaxIdleConnsPerHost:   maxIdleConnsPerHost,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ResponseHeaderTimeout: responseHeaderTimeout,
		ForceAttemptHTTP2:     true,
	}
}
