package util

import (
	"net/http"
	"net/url"

	"golang.org/x/net/http/httpproxy"
)

// ProxyConfig names explicit proxies. Empty fields fall back to the
// HTTP_PROXY, HTTPS_PROXY and NO_PROXY environment variables.
type ProxyConfig struct {
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

func (c ProxyConfig) resolved() *httpproxy.Config {
	env := httpproxy.FromEnvironment()
	if c.HTTPProxy != "" {
		env.HTTPProxy = c.HTTPProxy
	}
	if c.HTTPSProxy != "" {
		env.HTTPSProxy = c.HTTPSProxy
	}
	if c.NoProxy != "" {
		env.NoProxy = c.NoProxy
	}
	return env
}

// NewProxyFunc returns a transport proxy func for c
func NewProxyFunc(c ProxyConfig) func(*http.Request) (*url.URL, error) {
	if c.HTTPProxy == "" && c.HTTPSProxy == "" && c.NoProxy == "" {
		return http.ProxyFromEnvironment
	}
	fn := c.resolved().ProxyFunc()
	return func(req *http.Request) (*url.URL, error) {
		return fn(req.URL)
	}
}

// ProxyServer returns the single proxy a browser should use for target, or
// "" for a direct connection. Chrome takes one --proxy-server for all
// schemes, so the scheme of target picks which setting wins.
func ProxyServer(c ProxyConfig, target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	proxy, err := c.resolved().ProxyFunc()(u)
	if err != nil || proxy == nil {
		return "", err
	}
	return proxy.String(), nil
}
