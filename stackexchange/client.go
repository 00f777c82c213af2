/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package stackexchange implements a thin client for the Stack Exchange API
// (api.stackexchange.com). Every call reports the quota metadata the API
// returns in its response envelope, so the caller can track how many calls
// remain in the authenticated and anonymous quota windows.
package stackexchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/acronis/go-appkit/httpclient"
	"github.com/acronis/go-appkit/log"

	"github.com/stackmcp/sodispatch/accessmode"
)

const maxResponseBodySize = 10 * 1024 * 1024

const requestType = "stackexchange-api"

// Result is a successfully decoded API response.
// Quota is filled even when the call itself failed with an API error,
// as long as the response envelope could be parsed.
type Result struct {
	Items   json.RawMessage
	HasMore bool
	Total   int
	Quota   accessmode.QuotaInfo
}

// CallOpts are common pagination and ordering options for list calls.
type CallOpts struct {
	// Page is a 1-based page number. The API default is used when zero.
	Page int

	// PageSize is the number of items per page. The API default is used when zero.
	PageSize int

	// Sort overrides the per-endpoint default sort order.
	Sort string
}

// Client is a Stack Exchange API client. It keeps two HTTP clients sharing one
// transport chain: an anonymous one and one that attaches the API key, so the
// transport mode can be chosen per call.
type Client struct {
	anonClient *http.Client
	authClient *http.Client
	baseURL    *url.URL
	site       string
	hasKey     bool
}

// Opts provides options for New.
type Opts struct {
	// Logger is used for logging outgoing requests. Can be nil.
	Logger log.FieldLogger

	// Delegate is the innermost RoundTripper in the chain.
	// A clone of http.DefaultTransport is used when nil.
	Delegate http.RoundTripper
}

// New creates a new Client for the passed configuration.
func New(cfg *Config, opts Opts) (*Client, error) {
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}

	delegate := opts.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}

	var transport http.RoundTripper = delegate
	transport = httpclient.NewLoggingRoundTripperWithOpts(transport, httpclient.LoggingRoundTripperOpts{
		ClientType:     requestType,
		LoggerProvider: func(ctx context.Context) log.FieldLogger { return logger },
		Mode:           httpclient.LoggingModeFailed,
	})
	transport = httpclient.NewUserAgentRoundTripper(transport, cfg.UserAgent)

	return &Client{
		anonClient: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		authClient: &http.Client{
			Transport: NewAPIKeyRoundTripper(transport, cfg.Key, cfg.AccessToken),
			Timeout:   cfg.Timeout,
		},
		baseURL: baseURL,
		site:    cfg.Site,
		hasKey:  cfg.Key != "",
	}, nil
}

// HasCredentials reports whether an API key is configured.
func (c *Client) HasCredentials() bool {
	return c.hasKey
}

// SearchAdvanced searches questions by free-form keywords (/search/advanced).
func (c *Client) SearchAdvanced(
	ctx context.Context, query string, opts CallOpts, mode accessmode.Mode,
) (*Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("filter", "withbody")
	applyCallOpts(params, opts, "relevance")
	return c.call(ctx, "/search/advanced", params, mode)
}

// QuestionsByTags searches questions carrying all the passed tags (/questions).
func (c *Client) QuestionsByTags(
	ctx context.Context, tags []string, opts CallOpts, mode accessmode.Mode,
) (*Result, error) {
	params := url.Values{}
	params.Set("tagged", strings.Join(tags, ";"))
	params.Set("filter", "withbody")
	applyCallOpts(params, opts, "activity")
	return c.call(ctx, "/questions", params, mode)
}

// Question fetches a single question with its body (/questions/{id}).
func (c *Client) Question(ctx context.Context, questionID int64, mode accessmode.Mode) (*Result, error) {
	params := url.Values{}
	params.Set("filter", "withbody")
	return c.call(ctx, "/questions/"+strconv.FormatInt(questionID, 10), params, mode)
}

// QuestionAnswers fetches answers of a question with their bodies (/questions/{id}/answers).
func (c *Client) QuestionAnswers(
	ctx context.Context, questionID int64, opts CallOpts, mode accessmode.Mode,
) (*Result, error) {
	params := url.Values{}
	params.Set("filter", "withbody")
	applyCallOpts(params, opts, "votes")
	return c.call(ctx, fmt.Sprintf("/questions/%d/answers", questionID), params, mode)
}

// ValidateKey performs a cheap authenticated call to check that the configured
// API key is accepted by the upstream. It returns false without an error when
// the key is rejected, so the caller can continue anonymously.
func (c *Client) ValidateKey(ctx context.Context) (bool, error) {
	if !c.hasKey {
		return false, nil
	}
	_, err := c.call(ctx, "/info", url.Values{}, accessmode.ModeAuthenticated)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError && !apiErr.IsThrottle() {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) call(
	ctx context.Context, endpoint string, params url.Values, mode accessmode.Mode,
) (*Result, error) {
	params.Set("site", c.site)

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + endpoint
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpClient := c.anonClient
	if mode == accessmode.ModeAuthenticated {
		httpClient = c.authClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{Inner: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, &RequestError{Inner: fmt.Errorf("read response body: %w", err)}
	}

	var env Envelope
	parseErr := json.Unmarshal(body, &env)

	res := &Result{Quota: quotaFromResponse(resp, &env, parseErr == nil)}
	if resp.StatusCode != http.StatusOK || (parseErr == nil && env.ErrorID != 0) {
		return res, &APIError{
			StatusCode:   resp.StatusCode,
			ErrorID:      env.ErrorID,
			ErrorName:    env.ErrorName,
			ErrorMessage: env.ErrorMessage,
		}
	}
	if parseErr != nil {
		return nil, &RequestError{Inner: fmt.Errorf("unmarshal response envelope: %w", parseErr)}
	}

	res.Items = env.Items
	res.HasMore = env.HasMore
	res.Total = env.Total
	return res, nil
}

// quotaFromResponse extracts quota metadata, preferring the envelope fields
// and falling back to X-RateLimit-* headers when the envelope carries none.
func quotaFromResponse(resp *http.Response, env *Envelope, parsed bool) accessmode.QuotaInfo {
	var info accessmode.QuotaInfo
	if parsed && env.QuotaRemaining != nil {
		info.HasQuota = true
		info.QuotaMax = env.QuotaMax
		info.QuotaRemaining = *env.QuotaRemaining
	} else if v := resp.Header.Get("X-RateLimit-Remaining"); v != "" {
		if remaining, convErr := strconv.Atoi(v); convErr == nil {
			info.HasQuota = true
			info.QuotaRemaining = remaining
			info.QuotaMax, _ = strconv.Atoi(resp.Header.Get("X-RateLimit-Max"))
		}
	}
	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if unix, convErr := strconv.ParseInt(v, 10, 64); convErr == nil {
			info.ResetAt = time.Unix(unix, 0)
		}
	}
	if parsed && env.Backoff > 0 {
		info.Backoff = time.Duration(env.Backoff) * time.Second
	}
	return info
}

func applyCallOpts(params url.Values, opts CallOpts, defaultSort string) {
	if opts.Page > 0 {
		params.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		params.Set("pagesize", strconv.Itoa(opts.PageSize))
	}
	sort := opts.Sort
	if sort == "" {
		sort = defaultSort
	}
	params.Set("sort", sort)
}
