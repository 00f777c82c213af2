/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package stackexchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stackmcp/sodispatch/accessmode"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, key string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := NewDefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.Key = key
	client, err := New(cfg, Opts{})
	require.NoError(t, err)
	return client
}

func writeEnvelope(t *testing.T, w http.ResponseWriter, env Envelope) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(env))
}

func quotaRemaining(v int) *int { return &v }

func TestClientSearchAdvanced(t *testing.T) {
	var gotQuery url.Values
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search/advanced", r.URL.Path)
		gotQuery = r.URL.Query()
		writeEnvelope(t, w, Envelope{
			Items:          json.RawMessage(`[{"question_id":42,"title":"How to avoid goroutine leaks?"}]`),
			HasMore:        true,
			Total:          100,
			QuotaMax:       300,
			QuotaRemaining: quotaRemaining(299),
		})
	}, "")

	res, err := client.SearchAdvanced(context.Background(), "goroutine leaks",
		CallOpts{Page: 2, PageSize: 10}, accessmode.ModeUnauthenticated)
	require.NoError(t, err)

	require.Equal(t, "goroutine leaks", gotQuery.Get("q"))
	require.Equal(t, "stackoverflow", gotQuery.Get("site"))
	require.Equal(t, "2", gotQuery.Get("page"))
	require.Equal(t, "10", gotQuery.Get("pagesize"))
	require.Equal(t, "relevance", gotQuery.Get("sort"))
	require.Equal(t, "withbody", gotQuery.Get("filter"))
	require.Empty(t, gotQuery.Get("key"))

	require.True(t, res.HasMore)
	require.Equal(t, 100, res.Total)
	require.True(t, res.Quota.HasQuota)
	require.Equal(t, 300, res.Quota.QuotaMax)
	require.Equal(t, 299, res.Quota.QuotaRemaining)

	questions, err := DecodeQuestions(res.Items)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	require.Equal(t, int64(42), questions[0].QuestionID)
}

func TestClientQuestionsByTags(t *testing.T) {
	var gotQuery url.Values
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/questions", r.URL.Path)
		gotQuery = r.URL.Query()
		writeEnvelope(t, w, Envelope{Items: json.RawMessage(`[]`), QuotaRemaining: quotaRemaining(299)})
	}, "")

	_, err := client.QuestionsByTags(context.Background(), []string{"go", "channels"},
		CallOpts{}, accessmode.ModeUnauthenticated)
	require.NoError(t, err)
	require.Equal(t, "go;channels", gotQuery.Get("tagged"))
	require.Equal(t, "activity", gotQuery.Get("sort"))
	require.Equal(t, "withbody", gotQuery.Get("filter"))
}

func TestClientQuestionAndAnswers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "withbody", r.URL.Query().Get("filter"))
		switch r.URL.Path {
		case "/questions/42":
			writeEnvelope(t, w, Envelope{
				Items:          json.RawMessage(`[{"question_id":42,"title":"t","body":"<p>b</p>"}]`),
				QuotaRemaining: quotaRemaining(299),
			})
		case "/questions/42/answers":
			require.Equal(t, "votes", r.URL.Query().Get("sort"))
			writeEnvelope(t, w, Envelope{
				Items:          json.RawMessage(`[{"answer_id":7,"question_id":42,"is_accepted":true}]`),
				QuotaRemaining: quotaRemaining(298),
			})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}, "")

	res, err := client.Question(context.Background(), 42, accessmode.ModeUnauthenticated)
	require.NoError(t, err)
	questions, err := DecodeQuestions(res.Items)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	require.Equal(t, "<p>b</p>", questions[0].Body)

	res, err = client.QuestionAnswers(context.Background(), 42, CallOpts{}, accessmode.ModeUnauthenticated)
	require.NoError(t, err)
	answers, err := DecodeAnswers(res.Items)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	require.True(t, answers[0].IsAccepted)
}

func TestClientAuthenticatedModeAttachesKey(t *testing.T) {
	var gotQuery url.Values
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		writeEnvelope(t, w, Envelope{Items: json.RawMessage(`[]`), QuotaRemaining: quotaRemaining(9999)})
	}, "test-key")

	_, err := client.SearchAdvanced(context.Background(), "x", CallOpts{}, accessmode.ModeAuthenticated)
	require.NoError(t, err)
	require.Equal(t, "test-key", gotQuery.Get("key"))

	// Anonymous calls from the same client never leak the key.
	_, err = client.SearchAdvanced(context.Background(), "x", CallOpts{}, accessmode.ModeUnauthenticated)
	require.NoError(t, err)
	require.Empty(t, gotQuery.Get("key"))
}

func TestClientThrottleError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		writeEnvelope(t, w, Envelope{
			ErrorID:        ErrorIDThrottleViolation,
			ErrorName:      "throttle_violation",
			ErrorMessage:   "too many requests from this IP",
			Backoff:        10,
			QuotaRemaining: quotaRemaining(0),
		})
	}, "")

	res, err := client.SearchAdvanced(context.Background(), "x", CallOpts{}, accessmode.ModeUnauthenticated)
	require.Error(t, err)
	require.True(t, IsRateLimitError(err))
	require.False(t, IsRetryableError(err))

	// Quota metadata is still extracted from failed responses.
	require.NotNil(t, res)
	require.True(t, res.Quota.HasQuota)
	require.Equal(t, 0, res.Quota.QuotaRemaining)
	require.Equal(t, 10*time.Second, res.Quota.Backoff)
}

func TestClientServerErrorIsRetryable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}, "")

	_, err := client.SearchAdvanced(context.Background(), "x", CallOpts{}, accessmode.ModeUnauthenticated)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	require.True(t, IsRetryableError(err))
	require.False(t, IsRateLimitError(err))
}

func TestClientQuotaFromHeaders(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Max", "300")
		w.Header().Set("X-RateLimit-Remaining", "250")
		w.Header().Set("X-RateLimit-Reset", "1735689600")
		_, _ = w.Write([]byte(`{"items":[]}`))
	}, "")

	res, err := client.SearchAdvanced(context.Background(), "x", CallOpts{}, accessmode.ModeUnauthenticated)
	require.NoError(t, err)
	require.True(t, res.Quota.HasQuota)
	require.Equal(t, 300, res.Quota.QuotaMax)
	require.Equal(t, 250, res.Quota.QuotaRemaining)
	require.Equal(t, time.Unix(1735689600, 0), res.Quota.ResetAt)
}

func TestClientMalformedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items": [`))
	}, "")

	_, err := client.SearchAdvanced(context.Background(), "x", CallOpts{}, accessmode.ModeUnauthenticated)
	require.Error(t, err)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
}

func TestClientValidateKey(t *testing.T) {
	t.Run("no key configured", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		}, "")
		ok, err := client.ValidateKey(context.Background())
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("key accepted", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/info", r.URL.Path)
			require.Equal(t, "good-key", r.URL.Query().Get("key"))
			writeEnvelope(t, w, Envelope{Items: json.RawMessage(`[]`), QuotaRemaining: quotaRemaining(9999)})
		}, "good-key")
		ok, err := client.ValidateKey(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("key rejected", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			writeEnvelope(t, w, Envelope{ErrorID: ErrorIDBadParameter, ErrorName: "bad_parameter", ErrorMessage: "key"})
		}, "bad-key")
		ok, err := client.ValidateKey(context.Background())
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestAPIKeyRoundTripperKeepsExistingKey(t *testing.T) {
	var gotQuery url.Values
	delegate := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		gotQuery = req.URL.Query()
		rec := httptest.NewRecorder()
		rec.WriteString("{}")
		return rec.Result(), nil
	})

	rt := NewAPIKeyRoundTripper(delegate, "configured-key", "token")
	req := httptest.NewRequest(http.MethodGet, "https://api.example.com/info?key=explicit-key", nil)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, "explicit-key", gotQuery.Get("key"))
	require.Empty(t, gotQuery.Get("access_token"))
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
