package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/mixtape/mixtape/internal/config"
	"github.com/mixtape/mixtape/internal/logging"
)

// CreateTransferClient creates the HTTP client used to pull audio streams.
//
// Key features:
//   - Proxy support (uses ConfigureHTTPClient as base)
//   - No overall timeout; transfers are bounded by their context
//   - HTTP/2 where available, off behind a proxy or when disabled in config
//   - Compression disabled so byte offsets match the Range header exactly
func CreateTransferClient(cfg config.NetworkConfig, logger *logging.Logger) (*nethttp.Client, error) {
	baseClient, err := ConfigureHTTPClient(cfg, "", logger)
	if err != nil {
		return nil, err
	}

	tr, ok := baseClient.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport in a Negotiator; leave it as configured
		baseClient.Timeout = 0
		return baseClient, nil
	}

	// A transparently gzip-decoded body would make bytesWritten disagree with
	// the server's offsets.
	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	// Proxies often mishandle HTTP/2 multiplexing, causing mid-transfer resets.
	// FORCE_HTTP2=true keeps it on anyway.
	disable := cfg.DisableHTTP2 || os.Getenv("DISABLE_HTTP2") == "true"
	if cfg.ProxyActive() && os.Getenv("FORCE_HTTP2") != "true" {
		disable = true
	}
	if disable {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	baseClient.Transport = tr
	baseClient.Timeout = 0
	return baseClient, nil
}
