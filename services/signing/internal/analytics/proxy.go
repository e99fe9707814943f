// Package analytics forwards /analytics/* to the analytics provider, signing
// each request with the key whose capability matches the method.
package analytics

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/altovisual/artist-management/pkg/httpx"
	"github.com/altovisual/artist-management/services/signing/internal/config"
	"go.uber.org/zap"
)

const PathPrefix = "/analytics"

type Proxy struct {
	target *url.URL
	creds  config.Credentials
	proxy  *httputil.ReverseProxy
	logger *zap.Logger
}

// New returns a disabled proxy when baseURL is empty.
func New(baseURL string, creds config.Credentials, logger *zap.Logger) (*Proxy, error) {
	p := &Proxy{creds: creds, logger: logger}
	if strings.TrimSpace(baseURL) == "" {
		return p, nil
	}
	target, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("analytics base url %q is not absolute", baseURL)
	}
	p.target = target
	p.proxy = &httputil.ReverseProxy{
		Rewrite:      p.rewrite,
		ErrorHandler: p.upstreamError,
	}
	return p, nil
}

func (p *Proxy) Enabled() bool { return p.target != nil }

func (p *Proxy) rewrite(pr *httputil.ProxyRequest) {
	pr.SetURL(p.target)
	pr.Out.URL.Path = joinPath(p.target.Path, strings.TrimPrefix(pr.In.URL.Path, PathPrefix))
	pr.Out.URL.RawPath = ""
	pr.Out.Host = p.target.Host

	cred := p.creds.ForMethod(pr.In.Method)
	pr.Out.Header.Del("Authorization")
	if cred.Key != "" {
		pr.Out.Header.Set("Authorization", "Bearer "+cred.Key)
	}
	p.logger.Debug("proxying analytics request",
		zap.String("method", pr.In.Method),
		zap.String("path", pr.Out.URL.Path),
		zap.Stringer("capability", cred.Capability))
}

func (p *Proxy) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	p.logger.Error("analytics upstream failed", zap.String("path", r.URL.Path), zap.Error(err))
	httpx.WriteError(w, http.StatusBadGateway, httpx.CodeUpstream, "analytics provider unavailable", nil)
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !p.Enabled() {
		httpx.WriteNotFound(w, "analytics is not configured")
		return
	}
	p.proxy.ServeHTTP(w, r)
}

func joinPath(base, rest string) string {
	if rest == "" {
		rest = "/"
	}
	if !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}
	return strings.TrimRight(base, "/") + rest
}
