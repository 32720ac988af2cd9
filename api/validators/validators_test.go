package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
)

type lineRequest struct {
	ProductID int64  `json:"productId" validate:"required,gt=0"`
	Note      string `json:"note" validate:"max=5"`
}

func decode(t *testing.T, body string) (lineRequest, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body))
	var payload lineRequest
	err := DecodeJSONBody(req, &payload)
	return payload, err
}

func requireValidation(t *testing.T, err error, message string) *pkgerrors.Error {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, message, typed.Message())
	return typed
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	payload, err := decode(t, `{"productId":3,"note":"hi"}`)
	require.NoError(t, err)
	assert.Equal(t, lineRequest{ProductID: 3, Note: "hi"}, payload)
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]struct {
		body    string
		message string
	}{
		"empty":         {body: "", message: "request body required"},
		"unknown field": {body: `{"productId":3,"price":1}`, message: "invalid request body"},
		"trailing data": {body: `{"productId":3} {"productId":4}`, message: "request body must hold a single JSON object"},
		"too large":     {body: `{"note":"` + strings.Repeat("x", int(MaxBodyBytes)) + `"}`, message: "request body too large"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decode(t, tc.body)
			requireValidation(t, err, tc.message)
		})
	}
}

func TestDecodeJSONBodyReportsFieldMessages(t *testing.T) {
	_, err := decode(t, `{"productId":0,"note":"too long"}`)
	typed := requireValidation(t, err, "validation failed")
	assert.Equal(t, map[string]string{
		"productId": "is required",
		"note":      "must be at most 5 characters",
	}, typed.Details())

	_, err = decode(t, `{"productId":-2}`)
	typed = requireValidation(t, err, "validation failed")
	assert.Equal(t, map[string]string{"productId": "must be greater than 0"}, typed.Details())
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?page=3&limit=abc&big=500", nil)

	page, err := ParseQueryInt(req, "page", 1, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, page)

	missing, err := ParseQueryInt(req, "offset", 7, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 7, missing)

	_, err = ParseQueryInt(req, "limit", 20, 1, 100)
	requireValidation(t, err, "query parameter must be numeric")
	_, err = ParseQueryInt(req, "big", 20, 1, 100)
	requireValidation(t, err, "query parameter out of range")
}

func TestParseQueryID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?sellerId=12&bad=-1&word=x", nil)

	id, err := ParseQueryID(req, "sellerId")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	id, err = ParseQueryID(req, "absent")
	require.NoError(t, err)
	assert.Zero(t, id)

	_, err = ParseQueryID(req, "bad")
	requireValidation(t, err, "invalid bad")
	_, err = ParseQueryID(req, "word")
	requireValidation(t, err, "invalid word")
}

func TestSanitizeStringTruncatesByRune(t *testing.T) {
	got := SanitizeString("  ñandú gelato  ", 5)
	assert.Equal(t, "ñandú", got)
	assert.True(t, utf8.ValidString(got))

	got = SanitizeString("日本語のテキスト", 3)
	assert.Equal(t, "日本語", got)
}

func TestSanitizeStringCleansWhitespaceAndControls(t *testing.T) {
	assert.Equal(t, "blue dream", SanitizeString("blue\t\n  dream\x00", 0))
	assert.Equal(t, "ab", SanitizeString("a\x07b", 10))
	assert.Equal(t, "sour", SanitizeString("sour diesel", 5))
	assert.Equal(t, "", SanitizeString("   ", 10))
}
