// Package types holds the JSON envelopes shared by the storefront API and the
// backend client, plus the request id carried between them.
package types

import (
	"context"
	"encoding/json"
)

// SuccessEnvelope wraps every successful response body.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// DataEnvelope is the decoding side of SuccessEnvelope; Data is left raw so
// callers can reject an absent or null payload before unmarshalling it.
type DataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// Empty reports whether the envelope carried no payload.
func (e DataEnvelope) Empty() bool {
	return len(e.Data) == 0 || string(e.Data) == "null"
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Retryable tells clients the same request may succeed later.
	Retryable bool `json:"retryable,omitempty"`
	Details   any  `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"requestId,omitempty"`
}

type requestIDKey struct{}

// WithRequestID stores the id of the inbound request on ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFrom returns the id stored by WithRequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
