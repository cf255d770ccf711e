// Package httpclient builds the shared req client used by HTTP providers.
package httpclient

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/imroc/req/v3"

	"github.com/tbckr/lapse/internal/version"
)

// DefaultTimeout bounds a single request when the caller passes no context deadline.
const DefaultTimeout = 30 * time.Second

// ResolveProxy returns the proxy value that will actually be used.
// An explicit proxy is returned as-is. Otherwise "<from environment>" is
// returned when any standard proxy variable is set, and "" when none is.
func ResolveProxy(proxy string) string {
	if proxy != "" {
		return proxy
	}
	for _, env := range []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy", "ALL_PROXY", "all_proxy"} {
		if os.Getenv(env) != "" {
			return "<from environment>"
		}
	}
	return ""
}

// ResolveUserAgent returns userAgent, or version.UserAgent() when empty.
func ResolveUserAgent(userAgent string) string {
	if userAgent != "" {
		return userAgent
	}
	return version.UserAgent()
}

// New builds a *req.Client with optional proxy and user-agent configuration.
// proxy supports http://, https:// and socks5:// URLs. When proxy is empty the
// standard proxy environment variables are honoured.
// When debug is true and logger is non-nil, every response is logged at DEBUG level.
func New(proxy, userAgent string, logger *slog.Logger, debug bool) (*req.Client, error) {
	client := req.NewClient().
		SetUserAgent(ResolveUserAgent(userAgent)).
		SetTimeout(DefaultTimeout)

	if proxy != "" {
		if err := validateProxy(proxy); err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", proxy, err)
		}
		client.SetProxyURL(proxy)
	} else {
		client.SetProxy(http.ProxyFromEnvironment)
	}

	if debug && logger != nil {
		attachDebugHook(client, logger)
	}
	return client, nil
}

// attachDebugHook logs method, URL and status of each response, plus a body
// snippet on non-2xx responses.
func attachDebugHook(client *req.Client, logger *slog.Logger) {
	client.OnAfterResponse(func(_ *req.Client, resp *req.Response) error {
		if resp.Request == nil || resp.Request.RawRequest == nil {
			return nil
		}
		logger.Debug("http response",
			"method", resp.Request.RawRequest.Method,
			"url", resp.Request.RawRequest.URL.String(),
			"status", resp.StatusCode,
		)
		if !resp.IsSuccessState() {
			body := resp.String()
			if len(body) > 512 {
				body = body[:512]
			}
			logger.Debug("http error body", "status", resp.StatusCode, "body", body)
		}
		return nil
	})
}

func validateProxy(proxy string) error {
	for _, scheme := range []string{"http://", "https://", "socks5://"} {
		if strings.HasPrefix(proxy, scheme) {
			return nil
		}
	}
	return fmt.Errorf("proxy scheme must be http://, https://, or socks5://")
}
