/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package sodispatch provides an outbound-request dispatch layer between query
// callers and the rate-limited Stack Exchange API. Logical requests are queued
// with priorities and served by a bounded pool of workers; identical in-flight
// requests are coalesced, completed results are cached with a TTL, and the
// authenticated transport mode degrades to anonymous access when the API quota
// runs low or the upstream throttles.
package sodispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/acronis/go-appkit/log"

	"github.com/stackmcp/sodispatch/accessmode"
	"github.com/stackmcp/sodispatch/dispatch"
	"github.com/stackmcp/sodispatch/resultcache"
	"github.com/stackmcp/sodispatch/stackexchange"
)

// Request parameter names understood by the executor.
const (
	paramQuery      = "q"
	paramTagged     = "tagged"
	paramQuestionID = "id"
	paramPage       = "page"
	paramPageSize   = "pagesize"
	paramSort       = "sort"
)

const cacheCleanupInterval = time.Minute

// ErrQuestionNotFound is returned when a question with the requested ID does not exist.
var ErrQuestionNotFound = errors.New("question not found")

// QueryOpts are per-call options for the typed query methods.
type QueryOpts struct {
	// Page is a 1-based page number. The API default is used when zero.
	Page int

	// PageSize is the number of items per page. The API default is used when zero.
	PageSize int

	// Sort overrides the per-endpoint default sort order.
	Sort string

	// Priority orders the request within the dispatch queue (default PriorityNormal).
	Priority dispatch.Priority
}

// Client is the facade over the Stack Exchange API client and the dispatch
// machinery. All query methods funnel through one prioritized queue, so the
// client-side rate limit and the request coalescing apply across callers.
type Client struct {
	api    *stackexchange.Client
	disp   *dispatch.Dispatcher[json.RawMessage]
	logger log.FieldLogger

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Opts provides options for New.
type Opts struct {
	// Logger is used for logging. Can be nil.
	Logger log.FieldLogger

	// Delegate is the innermost http.RoundTripper for upstream calls.
	// A clone of http.DefaultTransport is used when nil.
	Delegate http.RoundTripper

	// CacheMetrics is a metrics collector for the result cache. Can be nil.
	CacheMetrics resultcache.MetricsCollector

	// DispatchMetrics is a metrics collector for the dispatcher. Can be nil.
	DispatchMetrics dispatch.MetricsCollector
}

// New creates a new Client for the passed configuration and starts its workers.
// The returned Client must be closed with Close.
func New(cfg *Config, opts Opts) (*Client, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	applyConfigDefaults(cfg)

	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}

	api, err := stackexchange.New(cfg.StackExchange, stackexchange.Opts{Logger: logger, Delegate: opts.Delegate})
	if err != nil {
		return nil, err
	}

	cache, err := resultcache.NewWithOpts[json.RawMessage](resultcache.Opts{
		TTL:        cfg.ResultCache.TTL,
		MaxEntries: cfg.ResultCache.MaxEntries,
		Collector:  opts.CacheMetrics,
	})
	if err != nil {
		return nil, err
	}

	tracker := accessmode.NewTracker()
	selector := accessmode.NewSelectorWithOpts(tracker, api.HasCredentials(), accessmode.SelectorOpts{
		LowWaterMark: cfg.AccessMode.LowWaterMark,
	})

	disp, err := dispatch.New[json.RawMessage](newAPIExecutor(api), dispatch.Opts[json.RawMessage]{
		Workers:    cfg.Dispatch.Workers,
		MaxPending: cfg.Dispatch.MaxPending,
		Mode:       cfg.AccessMode.Mode,
		Cache:      cache,
		Tracker:    tracker,
		Selector:   selector,
		RetryPolicy: dispatch.RetryPolicy{
			MaxAttempts: cfg.Dispatch.Retries.MaxAttempts,
			Backoff:     cfg.Dispatch.Retries.BackoffPolicy(),
			IsRetryable: stackexchange.IsRetryableError,
			IsRateLimit: stackexchange.IsRateLimitError,
		},
		RequestsPerMinute: cfg.Dispatch.RequestsPerMinute,
		Logger:            logger,
		Metrics:           opts.DispatchMetrics,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		api:    api,
		disp:   disp,
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(c.done)
		_ = disp.Run(ctx)
	}()
	go cache.RunPeriodicCleanup(ctx, cacheCleanupInterval)
	return c, nil
}

func applyConfigDefaults(cfg *Config) {
	if cfg.StackExchange == nil {
		cfg.StackExchange = stackexchange.NewDefaultConfig()
	}
	if cfg.StackExchange.BaseURL == "" {
		cfg.StackExchange.BaseURL = stackexchange.DefaultBaseURL
	}
	if cfg.StackExchange.Site == "" {
		cfg.StackExchange.Site = stackexchange.DefaultSite
	}
	if cfg.StackExchange.Timeout <= 0 {
		cfg.StackExchange.Timeout = stackexchange.DefaultTimeout
	}
	if cfg.StackExchange.UserAgent == "" {
		cfg.StackExchange.UserAgent = stackexchange.DefaultUserAgent
	}
	if cfg.Dispatch == nil {
		cfg.Dispatch = dispatch.NewConfig()
	}
	if cfg.ResultCache == nil {
		cfg.ResultCache = resultcache.NewConfig()
	}
	if cfg.AccessMode == nil {
		cfg.AccessMode = accessmode.NewConfig()
	}
}

// Close stops the workers and fails all the requests still in the queue with
// dispatch.ErrDispatcherClosed. It blocks until the workers have exited.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done
	})
}

// SearchQuestions searches questions by free-form keywords.
func (c *Client) SearchQuestions(ctx context.Context, query string, opts QueryOpts) ([]stackexchange.Question, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &dispatch.ValidationError{Message: "search query must not be empty"}
	}
	items, err := c.await(ctx, dispatch.Request{
		Op:     dispatch.OpSearchQuestions,
		Params: withPaging(map[string]string{paramQuery: query}, opts),
	}, opts.Priority)
	if err != nil {
		return nil, err
	}
	return stackexchange.DecodeQuestions(items)
}

// SearchByTags searches questions carrying all the passed tags.
func (c *Client) SearchByTags(ctx context.Context, tags []string, opts QueryOpts) ([]stackexchange.Question, error) {
	clean := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			clean = append(clean, tag)
		}
	}
	if len(clean) == 0 {
		return nil, &dispatch.ValidationError{Message: "at least one tag is required"}
	}
	items, err := c.await(ctx, dispatch.Request{
		Op:     dispatch.OpSearchByTags,
		Params: withPaging(map[string]string{paramTagged: strings.Join(clean, ";")}, opts),
	}, opts.Priority)
	if err != nil {
		return nil, err
	}
	return stackexchange.DecodeQuestions(items)
}

// GetQuestion fetches a single question with its body.
// It returns ErrQuestionNotFound when the question does not exist.
func (c *Client) GetQuestion(ctx context.Context, questionID int64, opts QueryOpts) (*stackexchange.Question, error) {
	if questionID <= 0 {
		return nil, &dispatch.ValidationError{Message: "question id must be positive"}
	}
	items, err := c.await(ctx, dispatch.Request{
		Op:     dispatch.OpGetQuestion,
		Params: map[string]string{paramQuestionID: strconv.FormatInt(questionID, 10)},
	}, opts.Priority)
	if err != nil {
		return nil, err
	}
	questions, err := stackexchange.DecodeQuestions(items)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, ErrQuestionNotFound
	}
	return &questions[0], nil
}

// GetQuestionAnswers fetches the answers of a question with their bodies.
func (c *Client) GetQuestionAnswers(ctx context.Context, questionID int64, opts QueryOpts) ([]stackexchange.Answer, error) {
	if questionID <= 0 {
		return nil, &dispatch.ValidationError{Message: "question id must be positive"}
	}
	items, err := c.await(ctx, dispatch.Request{
		Op:     dispatch.OpGetQuestionAnswers,
		Params: withPaging(map[string]string{paramQuestionID: strconv.FormatInt(questionID, 10)}, opts),
	}, opts.Priority)
	if err != nil {
		return nil, err
	}
	return stackexchange.DecodeAnswers(items)
}

// ValidateKey checks that the configured API key is accepted by the upstream.
// The call goes out directly, bypassing the queue.
func (c *Client) ValidateKey(ctx context.Context) (bool, error) {
	return c.api.ValidateKey(ctx)
}

// Status returns a point-in-time snapshot of the queue, cache and quota state.
func (c *Client) Status() dispatch.StatusSnapshot {
	return c.disp.Status()
}

func (c *Client) await(ctx context.Context, req dispatch.Request, prio dispatch.Priority) (json.RawMessage, error) {
	fut, err := c.disp.Enqueue(req, prio)
	if err != nil {
		return nil, err
	}
	return fut.Wait(ctx)
}

func withPaging(params map[string]string, opts QueryOpts) map[string]string {
	if opts.Page > 0 {
		params[paramPage] = strconv.Itoa(opts.Page)
	}
	if opts.PageSize > 0 {
		params[paramPageSize] = strconv.Itoa(opts.PageSize)
	}
	if opts.Sort != "" {
		params[paramSort] = opts.Sort
	}
	return params
}
