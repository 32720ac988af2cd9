// Package backend is the HTTP client for the storefront REST backend. It
// serves as the order service, the favorites service and the product source.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker/v2"

	"github.com/angelmondragon/packfinderz-storefront/internal/checkout"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/types"
)

const (
	defaultTimeout             = 10 * time.Second
	errorBodyReadLimit   int64 = 1024
	headerUserID               = "X-User-ID"
	headerIdempotencyKey       = "Idempotency-Key"
	headerRequestID            = "X-Request-Id"

	defaultBreakerFailures uint32 = 5
	defaultBreakerCooldown        = 30 * time.Second
)

var errBaseURLRequired = errors.New("backend base url is required")

// Client talks to the backend on behalf of the storefront.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiToken   string
	validate   *validator.Validate
	logg       *logger.Logger

	breakerFailures uint32
	breakerCooldown time.Duration
	breaker         *gobreaker.CircuitBreaker[struct{}]
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithAPIToken sends token as a bearer credential.
func WithAPIToken(token string) Option {
	return func(c *Client) {
		c.apiToken = strings.TrimSpace(token)
	}
}

func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		c.logg = logg
	}
}

// WithCircuitBreaker opens the breaker after failures consecutive upstream
// failures and lets one request through again once cooldown has elapsed.
func WithCircuitBreaker(failures uint32, cooldown time.Duration) Option {
	return func(c *Client) {
		if failures > 0 {
			c.breakerFailures = failures
		}
		if cooldown > 0 {
			c.breakerCooldown = cooldown
		}
	}
}

// NewClient builds a backend client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid backend base url: %w", err)
	}

	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
		validate:   newValidator(),

		breakerFailures: defaultBreakerFailures,
		breakerCooldown: defaultBreakerCooldown,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	client.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 1,
		Timeout:     client.breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= client.breakerFailures
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			ctx := client.logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			client.logg.Warn(ctx, "backend.breaker_state_changed")
		},
	})
	return client, nil
}

// countsAsSuccess treats rejections the backend answered deliberately as
// healthy; only transport failures and 5xx responses trip the breaker.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	return !pkgerrors.IsCode(err, pkgerrors.CodeDependency)
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// ForUser scopes order and favorites calls to userID.
func (c *Client) ForUser(userID string) *UserClient {
	return &UserClient{client: c, userID: userID}
}

type request struct {
	method string
	path   string
	query  url.Values
	userID string
	body   any
	action string
}

// do sends req through the circuit breaker.
func (c *Client) do(ctx context.Context, req request, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "backend client not configured")
	}
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.send(ctx, req, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, req.action+" skipped: backend unavailable")
	}
	return err
}

// send performs one request and decodes the data field of the success
// envelope into out.
func (c *Client) send(ctx context.Context, req request, out any) error {
	endpoint := c.baseURL + "/" + strings.TrimLeft(req.path, "/")
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal "+req.action+" request")
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build "+req.action+" request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
	if req.userID != "" {
		httpReq.Header.Set(headerUserID, req.userID)
	}
	if key := checkout.IdempotencyKeyFrom(ctx); key != "" {
		httpReq.Header.Set(headerIdempotencyKey, key)
	}
	if id := types.RequestIDFrom(ctx); id != "" {
		httpReq.Header.Set(headerRequestID, id)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+req.action+" request")
	}
	defer func() { _ = resp.Body.Close() }()

	c.logg.Debug(c.logg.WithFields(ctx, map[string]any{
		"backend_action": req.action,
		"status":         resp.StatusCode,
		"duration_ms":    time.Since(started).Milliseconds(),
	}), "backend.request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp, req.action)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var envelope types.DataEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+req.action+" response")
	}
	if envelope.Empty() {
		return pkgerrors.New(pkgerrors.CodeDependency, req.action+" response has no data")
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+req.action+" payload")
	}
	if err := c.check(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalid "+req.action+" response")
	}
	return nil
}

// check validates struct payloads and every struct element of slice payloads.
func (c *Client) check(out any) error {
	value := reflect.ValueOf(out)
	for value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return nil
		}
		value = value.Elem()
	}
	switch value.Kind() {
	case reflect.Struct:
		return c.validate.Struct(value.Interface())
	case reflect.Slice:
		for i := 0; i < value.Len(); i++ {
			elem := value.Index(i)
			if elem.Kind() == reflect.Struct {
				if err := c.validate.Struct(elem.Interface()); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func decodeError(resp *http.Response, action string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))

	var envelope types.ErrorEnvelope
	message := strings.TrimSpace(string(raw))
	code := codeForStatus(resp.StatusCode)
	var details any
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Code != "" {
		message = envelope.Error.Message
		details = envelope.Error.Details
		if candidate := pkgerrors.Code(envelope.Error.Code); pkgerrors.Known(candidate) && resp.StatusCode < 500 {
			code = candidate
		}
	}

	cause := fmt.Errorf("status %d: %s", resp.StatusCode, message)
	typed := pkgerrors.Wrap(code, cause, action+" request failed")
	if details != nil {
		typed = typed.WithDetails(details)
	}
	return typed
}

func codeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return pkgerrors.CodeUnauthorized
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	default:
		return pkgerrors.CodeDependency
	}
}
