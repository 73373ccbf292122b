package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/quarkpan/quarkpan/internal/config"
)

// NewTransferClient creates an HTTP client for streaming file content.
//
// It shares proxy handling with ConfigureHTTPClient but has no overall
// timeout: a large download may legitimately take longer than any fixed
// bound, so callers cancel through the request context instead.
//
// HTTP/2 is enabled unless a proxy is active or DISABLE_HTTP2=true is set.
func NewTransferClient(cfg *config.Config) (*nethttp.Client, error) {
	baseClient, err := ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	baseClient.Timeout = 0

	// NTLM wraps the transport; leave it as-is
	tr, ok := baseClient.Transport.(*nethttp.Transport)
	if !ok {
		return baseClient, nil
	}

	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	proxyActive := false
	switch cfg.ProxyMode {
	case "no-proxy", "":
	case "system":
		proxyActive = os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	default:
		proxyActive = cfg.ProxyHost != ""
	}

	if os.Getenv("DISABLE_HTTP2") == "true" || proxyActive {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	return baseClient, nil
}
