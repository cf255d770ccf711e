package httpclient_test

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/lapse/internal/httpclient"
	"github.com/tbckr/lapse/internal/version"
)

func TestNew_Proxies(t *testing.T) {
	for _, proxy := range []string{"", "http://proxy.example.com:8080", "https://proxy.example.com:8443", "socks5://127.0.0.1:9050"} {
		client, err := httpclient.New(proxy, "", nil, false)
		require.NoError(t, err, proxy)
		assert.NotNil(t, client)
	}
}

func TestNew_InvalidProxyScheme(t *testing.T) {
	_, err := httpclient.New("ftp://proxy.example.com:8080", "", nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proxy scheme")
}

func TestNew_SendsUserAgent(t *testing.T) {
	for name, tc := range map[string]struct{ in, want string }{
		"default": {in: "", want: version.UserAgent()},
		"custom":  {in: "portfolio-bot/2.0", want: "portfolio-bot/2.0"},
	} {
		t.Run(name, func(t *testing.T) {
			client, err := httpclient.New("", tc.in, nil, false)
			require.NoError(t, err)
			httpmock.ActivateNonDefault(client.GetClient())
			t.Cleanup(httpmock.DeactivateAndReset)

			var got string
			httpmock.RegisterResponder(http.MethodGet, "https://rdap.example/",
				func(r *http.Request) (*http.Response, error) {
					got = r.Header.Get("User-Agent")
					return httpmock.NewStringResponse(http.StatusOK, ""), nil
				})
			_, err = client.R().Get("https://rdap.example/")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNew_DebugHookTolerates404(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client, err := httpclient.New("", "", logger, true)
	require.NoError(t, err)
	httpmock.ActivateNonDefault(client.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponder(http.MethodGet, "https://rdap.example/missing",
		httpmock.NewStringResponder(http.StatusNotFound, "not found"))

	resp, err := client.R().Get("https://rdap.example/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResolveProxy(t *testing.T) {
	for _, env := range []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy", "ALL_PROXY", "all_proxy"} {
		t.Setenv(env, "")
	}
	assert.Equal(t, "", httpclient.ResolveProxy(""))
	assert.Equal(t, "http://explicit:8080", httpclient.ResolveProxy("http://explicit:8080"))

	t.Setenv("https_proxy", "http://env:8080")
	assert.Equal(t, "<from environment>", httpclient.ResolveProxy(""))
	assert.Equal(t, "http://explicit:8080", httpclient.ResolveProxy("http://explicit:8080"))
}
