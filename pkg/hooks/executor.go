package hooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/voicetyped/adaptive/pkg/events"
	"github.com/voicetyped/adaptive/pkg/urlvalidation"
)

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient replaces the default pooled client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) { e.httpClient = c }
}

// WithTimeout sets the default per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithBreakerConfig sets the parameters of the per-host circuit breakers.
func WithBreakerConfig(cfg BreakerConfig) Option {
	return func(e *Executor) { e.breakerCfg = cfg }
}

// WithValidation passes options to the outbound URL check.
func WithValidation(opts ...urlvalidation.Option) Option {
	return func(e *Executor) { e.validateOpts = append(e.validateOpts, opts...) }
}

// Executor performs outbound calls.
type Executor struct {
	httpClient   *http.Client
	publisher    *events.Publisher
	validateOpts []urlvalidation.Option
	timeout      time.Duration
	breakerCfg   BreakerConfig

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewExecutor creates an executor. The publisher may be nil.
func NewExecutor(publisher *events.Publisher, opts ...Option) *Executor {
	e := &Executor{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     60 * time.Second,
			},
		},
		publisher:  publisher,
		timeout:    30 * time.Second,
		breakerCfg: DefaultBreakerConfig,
		breakers:   make(map[string]*CircuitBreaker),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Breaker returns the circuit breaker of host, creating it on first use.
func (e *Executor) Breaker(host string) *CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	cb, ok := e.breakers[host]
	if !ok {
		cb = NewCircuitBreaker(e.breakerCfg)
		e.breakers[host] = cb
	}
	return cb
}

// Do performs req. Errors are returned only when the host could not be
// reached or the call was refused locally.
func (e *Executor) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	if err := urlvalidation.ValidateOutboundURL(req.URL, e.validateOpts...); err != nil {
		return nil, fmt.Errorf("outbound URL validation: %w", err)
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}

	cb := e.Breaker(u.Host)
	if !cb.AllowRequest() {
		return nil, fmt.Errorf("%s %s: %w", method, u.Host, ErrCircuitOpen)
	}

	timeout := e.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	switch req.Auth.Type {
	case AuthBearer:
		httpReq.Header.Set("Authorization", "Bearer "+req.Auth.Secret)
	case AuthHMAC:
		httpReq.Header.Set(SignatureHeader, Sign(req.Auth.Secret, req.Body))
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		cb.RecordFailure()
		e.emit(ctx, events.HTTPRequestFailed, req.ConversationID, &events.HTTPErrorData{
			Method: method,
			URL:    req.URL,
			Error:  err.Error(),
		})
		return nil, fmt.Errorf("%s %s: %w", method, req.URL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	// Drain remainder for connection reuse.
	_, _ = io.Copy(io.Discard, resp.Body)
	if err != nil {
		cb.RecordFailure()
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		cb.RecordFailure()
	} else {
		cb.RecordSuccess()
	}
	e.emit(ctx, events.HTTPRequestSent, req.ConversationID, &events.HTTPRequestData{
		Method:     method,
		URL:        req.URL,
		StatusCode: resp.StatusCode,
	})

	headers := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		headers[k] = strings.Join(v, ", ")
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Status:     strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "),
		Headers:    headers,
		Body:       respBody,
	}, nil
}

func (e *Executor) emit(ctx context.Context, t events.EventType, convID string, data any) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Emit(ctx, t, convID, data); err != nil {
		slog.WarnContext(ctx, "failed to publish http event",
			slog.String("event_type", string(t)), slog.String("error", err.Error()))
	}
}
