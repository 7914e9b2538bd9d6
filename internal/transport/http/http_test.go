package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nadzzz/statlg/internal/dispatch"
	"github.com/nadzzz/statlg/internal/message"
)

func echoHandler(_ context.Context, req *message.RenderRequest) (*message.RenderResult, error) {
	switch req.Pattern {
	case "":
		return &message.RenderResult{}, fmt.Errorf("%w: pattern is required", dispatch.ErrInvalidRequest)
	case "Broken":
		return &message.RenderResult{RequestID: req.ID, Pattern: req.Pattern, Error: "render failed: boom"}, nil
	case "Panic":
		return nil, errors.New("transport failure")
	}
	return &message.RenderResult{
		RequestID: req.ID,
		Pattern:   req.Pattern,
		Locale:    req.Locale,
		Text:      fmt.Sprintf("Hello %v.", req.Substitutions["name"]),
	}, nil
}

func serve(t *testing.T, tr *Transport, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	tr.Router(echoHandler).ServeHTTP(rec, req)
	return rec
}

func TestRender(t *testing.T) {
	tr := New(0, nil, "")
	rec := serve(t, tr, http.MethodPost, "/render", `{"id":"r1","pattern":"Greet","locale":"en-US","substitutions":{"name":"Ann"}}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var res message.RenderResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, message.RenderResult{RequestID: "r1", Pattern: "Greet", Locale: "en-US", Text: "Hello Ann."}, res)
}

func TestRender_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"pattern":`, http.StatusBadRequest},
		{"invalid request", `{"pattern":""}`, http.StatusBadRequest},
		{"render failure", `{"pattern":"Broken"}`, http.StatusUnprocessableEntity},
		{"handler error", `{"pattern":"Panic"}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, New(0, nil, ""), http.MethodPost, "/render", tt.body, nil)
			require.Equal(t, tt.want, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.NotEmpty(t, body["error"])
		})
	}
}

func TestToken(t *testing.T) {
	tr := New(0, func() []string { return []string{"greet"} }, "s3cret")

	rec := serve(t, tr, http.MethodGet, "/patterns", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(t, tr, http.MethodGet, "/patterns", "", map[string]string{TokenHeader: "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(t, tr, http.MethodPost, "/render", `{"pattern":"Greet"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(t, tr, http.MethodGet, "/patterns", "", map[string]string{TokenHeader: "s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPatterns(t *testing.T) {
	rec := serve(t, New(0, func() []string { return []string{"greet", "weather"} }, ""), http.MethodGet, "/patterns", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `["greet","weather"]`, rec.Body.String())

	rec = serve(t, New(0, nil, ""), http.MethodGet, "/patterns", "", nil)
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestSwaggerDoc(t *testing.T) {
	rec := serve(t, New(0, nil, "s3cret"), http.MethodGet, "/swagger/doc.json", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc struct {
		Paths map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Contains(t, doc.Paths, "/render")
	require.Contains(t, doc.Paths, "/patterns")
}

func TestMethodNotAllowed(t *testing.T) {
	rec := serve(t, New(0, nil, ""), http.MethodGet, "/render", "", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
