package http

import (
	nethttp "net/http"
	"net/url"
	"testing"

	ntlmssp "github.com/Azure/go-ntlmssp"

	"github.com/quarkpan/quarkpan/internal/config"
	"github.com/quarkpan/quarkpan/internal/constants"
)

// TestProxyFuncWithBypass verifies NO_PROXY matching for hosts, wildcards and CIDRs.
func TestProxyFuncWithBypass(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")

	tests := []struct {
		name       string
		noProxy    string
		url        string
		wantBypass bool
	}{
		{"empty list proxies everything", "", "https://drive-pc.quark.cn/1/clouddrive/file/sort", false},
		{"wildcard match", "*.quark.cn", "https://drive-pc.quark.cn/1/clouddrive/file", true},
		{"exact domain covers subdomains", "quark.cn", "https://pan.quark.cn/account/info", true},
		{"cidr match", "10.0.0.0/8", "http://10.1.2.3:8080/api", true},
		{"multiple patterns", "*.internal.corp, 192.168.0.0/16", "http://192.168.1.100/api", true},
		{"non-match", "*.internal.corp,10.0.0.0/8", "https://drive.quark.cn/1/clouddrive/share/sharepage/save", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proxyFunc := proxyFuncWithBypass(proxyURL, tt.noProxy)
			req, _ := nethttp.NewRequest("GET", tt.url, nil)
			result, err := proxyFunc(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantBypass && result != nil {
				t.Errorf("expected bypass (nil) for %s, got %v", tt.url, result)
			}
			if !tt.wantBypass {
				if result == nil {
					t.Fatalf("expected proxy for %s, got nil (bypass)", tt.url)
				}
				if result.Host != "proxy.corp:8080" {
					t.Errorf("expected proxy host proxy.corp:8080, got %s", result.Host)
				}
			}
		})
	}
}

func TestConfigureHTTPClient(t *testing.T) {
	cfg := config.New()
	client, err := ConfigureHTTPClient(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Timeout != constants.RequestTimeout {
		t.Errorf("expected %v timeout, got %v", constants.RequestTimeout, client.Timeout)
	}
	if tr, ok := client.Transport.(*nethttp.Transport); !ok || tr.Proxy != nil {
		t.Error("no-proxy mode should use a plain transport without proxy")
	}

	cfg.ProxyMode = "ntlm"
	cfg.ProxyHost = "proxy.corp"
	client, err = ConfigureHTTPClient(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := client.Transport.(ntlmssp.Negotiator); !ok {
		t.Errorf("ntlm mode should wrap transport, got %T", client.Transport)
	}

	cfg.ProxyMode = "socks"
	if _, err := ConfigureHTTPClient(cfg); err == nil {
		t.Error("expected error for unsupported proxy mode")
	}
}

func TestBuildProxyURL(t *testing.T) {
	cfg := config.New()
	cfg.ProxyHost = "proxy.corp"
	cfg.ProxyUser = "u"

	u := buildProxyURL(cfg)
	if u.Host != "proxy.corp:8080" {
		t.Errorf("expected default port 8080, got %s", u.Host)
	}
	if u.User != nil {
		t.Error("credentials must not be embedded without a password")
	}
	if !NeedsProxyPassword(&config.Config{ProxyMode: "basic", ProxyUser: "u"}) {
		t.Error("basic proxy with user and no password should need a password")
	}

	cfg.ProxyPassword = "p"
	cfg.ProxyPort = 3128
	u = buildProxyURL(cfg)
	if u.Host != "proxy.corp:3128" || u.User.Username() != "u" {
		t.Errorf("unexpected proxy URL: %s", u.String())
	}
}

func TestNewTransferClientHasNoTimeout(t *testing.T) {
	client, err := NewTransferClient(config.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Timeout != 0 {
		t.Errorf("transfer client should rely on context cancellation, got timeout %v", client.Timeout)
	}
}
