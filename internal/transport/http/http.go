// Package http implements the HTTP transport for statlg.
//
// This transport exposes a small REST API: POST /render renders a phrase and
// GET /patterns lists the phrase names. Swagger UI is served under /swagger/.
package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/nadzzz/statlg/docs"
	"github.com/nadzzz/statlg/internal/dispatch"
	"github.com/nadzzz/statlg/internal/message"
	"github.com/nadzzz/statlg/internal/transport"
)

// TokenHeader carries the client token when one is configured.
const TokenHeader = "X-Statlg-Token"

const maxBodyBytes = 1 << 20

// Transport implements transport.Transport over HTTP.
type Transport struct {
	port     int
	patterns transport.PatternLister
	token    string
	server   *http.Server
}

// New creates a new HTTP transport on the given port. A non-empty token is
// required in the X-Statlg-Token header of API requests.
func New(port int, patterns transport.PatternLister, token string) *Transport {
	return &Transport{port: port, patterns: patterns, token: token}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Router builds the request router for handler.
func (t *Transport) Router(handler transport.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Group(func(r chi.Router) {
		r.Use(t.requireToken)
		r.Post("/render", func(w http.ResponseWriter, r *http.Request) {
			t.handleRender(w, r, handler)
		})
		r.Get("/patterns", t.handlePatterns)
	})

	// Swagger UI serves the registered OpenAPI document.
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}

// Listen starts the HTTP server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.port),
		Handler:           t.Router(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

func (t *Transport) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t.token != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(TokenHeader)), []byte(t.token)) != 1 {
			respondError(w, http.StatusUnauthorized, "missing or invalid "+TokenHeader, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleRender processes a POST /render request.
//
// @Summary     Render a phrase
// @Description Looks up the named phrase for the request locale and variant constraints, applies the
// @Description substitutions and returns the rendered text, short text and SSML, shaped by response_mode.
// @Tags        render
// @Accept      json
// @Produce     json
// @Param       request  body      message.RenderRequest  true  "Render request"
// @Param       X-Statlg-Token  header  string  false  "Client token, required when configured"
// @Success     200  {object}  message.RenderResult  "Rendered phrase"
// @Failure     400  {object}  map[string]string     "Invalid request body"
// @Failure     401  {object}  map[string]string     "Missing or invalid token"
// @Failure     422  {object}  message.RenderResult  "Render failed; see error"
// @Router      /render [post]
func (t *Transport) handleRender(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	var req message.RenderRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json", err)
		return
	}

	result, err := handler(r.Context(), &req)
	switch {
	case errors.Is(err, dispatch.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, "invalid request", err)
	case err != nil:
		slog.Error("render failed", "request_id", req.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "render error", err)
	case result.Error != "":
		respondJSON(w, http.StatusUnprocessableEntity, result)
	default:
		respondJSON(w, http.StatusOK, result)
	}
}

// handlePatterns processes a GET /patterns request.
//
// @Summary     List phrase names
// @Tags        render
// @Produce     json
// @Param       X-Statlg-Token  header  string  false  "Client token, required when configured"
// @Success     200  {array}   string  "Lower-cased phrase names, sorted"
// @Failure     401  {object}  map[string]string  "Missing or invalid token"
// @Router      /patterns [get]
func (t *Transport) handlePatterns(w http.ResponseWriter, _ *http.Request) {
	names := []string{}
	if t.patterns != nil {
		names = append(names, t.patterns()...)
	}
	respondJSON(w, http.StatusOK, names)
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string, err error) {
	response := map[string]string{"error": msg}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
