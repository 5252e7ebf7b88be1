package httpclient

import (
	"net/http"
	"time"
)

// sharedTransport is reused across all pooled clients so the embed and chat
// clients keep warm TCP connections to the same Ollama host instead of
// handshaking on every judge round.
var sharedTransport = &http.Transport{
	MaxIdleConns:        20,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     120 * time.Second,
	DisableKeepAlives:   false,
}

// NewPooledClient creates an http.Client that shares a connection pool with
// other pooled clients. Timeouts differ per use: embedding calls finish in
// seconds, generation can run minutes.
func NewPooledClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: sharedTransport,
	}
}
