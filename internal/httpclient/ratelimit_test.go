package httpclient

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/lapse/internal/ratelimit"
)

func TestAttachRateLimit_TransportErrorRetried(t *testing.T) {
	client, err := New("", "", nil, false)
	require.NoError(t, err)
	AttachRateLimit(client, ratelimit.New(1000, 1000))
	httpmock.ActivateNonDefault(client.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	calls := 0
	httpmock.RegisterResponder(http.MethodGet, "https://rdap.example/domain/example.com",
		func(*http.Request) (*http.Response, error) {
			calls++
			if calls < 2 {
				return nil, errors.New("connection reset by peer")
			}
			return httpmock.NewStringResponse(http.StatusOK, "{}"), nil
		})

	resp, err := client.R().Get("https://rdap.example/domain/example.com")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, calls)
}

func TestAttachRateLimit_TransportErrorExhausted(t *testing.T) {
	client, err := New("", "", nil, false)
	require.NoError(t, err)
	AttachRateLimit(client, ratelimit.New(1000, 1000))
	httpmock.ActivateNonDefault(client.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodGet, "https://rdap.example/",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	_, err = client.R().Get("https://rdap.example/")
	assert.Error(t, err)
	assert.Equal(t, retryCount+1, httpmock.GetTotalCallCount())
}

func TestAttachRateLimit_ContextCancelNotRetried(t *testing.T) {
	client, err := New("", "", nil, false)
	require.NoError(t, err)
	AttachRateLimit(client, ratelimit.New(1000, 1000))
	httpmock.ActivateNonDefault(client.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodGet, "https://rdap.example/",
		httpmock.NewErrorResponder(context.Canceled))

	_, err = client.R().Get("https://rdap.example/")
	assert.Error(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, retryAfterFallback, parseRetryAfter(""))
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Equal(t, retryAfterCap, parseRetryAfter("3600"))
	assert.Equal(t, retryAfterFallback, parseRetryAfter("soon"))
	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	assert.Equal(t, retryAfterCap, parseRetryAfter(future))
}
