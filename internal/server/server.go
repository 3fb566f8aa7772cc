package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"abstractrag/internal/domain"
	"abstractrag/internal/port"
)

// Ingester installs a new index generation from a document source.
type Ingester interface {
	IngestFromSource(ctx context.Context, src port.DocumentSource) (int, error)
}

// Answerer answers a question from retrieved context.
type Answerer interface {
	Answer(ctx context.Context, query string, topK int) (domain.Answer, error)
}

// IndexStats exposes the size of the live index.
type IndexStats interface {
	Len() int
	Generation() uint64
}

// Options configures the HTTP API.
type Options struct {
	DefaultTopK       int
	RequestTimeout    time.Duration
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// API serves ingestion and question answering over HTTP.
type API struct {
	ingest Ingester
	answer Answerer
	index  IndexStats
	source port.DocumentSource
	opts   Options
	logger *slog.Logger
}

// NewAPI wires the handlers. source is what POST /ingest loads from.
func NewAPI(ingest Ingester, answer Answerer, index IndexStats, source port.DocumentSource, opts Options, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 1
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = 10 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 15 * time.Second
	}
	return &API{
		ingest: ingest,
		answer: answer,
		index:  index,
		source: source,
		opts:   opts,
		logger: logger,
	}
}

// Handler returns the routed handler with request logging applied.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", a.handleRoot)
	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /ingest", a.handleIngest)
	mux.HandleFunc("POST /query", a.handleQuery)
	return a.logMiddleware(mux)
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (a *API) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: a.opts.ReadHeaderTimeout,
	}

	errs := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.opts.ShutdownTimeout)
		defer cancel()
		a.logger.Info("http server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type healthResponse struct {
	Status     string `json:"status"`
	Documents  int    `json:"documents"`
	Generation uint64 `json:"generation"`
}

type ingestResponse struct {
	Status            string `json:"status"`
	DocumentsIngested int    `json:"documents_ingested"`
}

type queryRequest struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k"`
}

type apiError struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Abstract RAG service. POST /ingest to load abstracts, POST /query to ask a question.",
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		Documents:  a.index.Len(),
		Generation: a.index.Generation(),
	})
}

func (a *API) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), a.opts.RequestTimeout)
	defer cancel()

	n, err := a.ingest.IngestFromSource(ctx, a.source)
	if err != nil {
		a.writeFailure(ctx, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{Status: "success", DocumentsIngested: n})
}

func (a *API) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, domain.ErrorKind(domain.ErrInvalidInput), "invalid JSON body: "+err.Error())
		return
	}

	topK := a.opts.DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.opts.RequestTimeout)
	defer cancel()

	answer, err := a.answer.Answer(ctx, req.Query, topK)
	if err != nil {
		a.writeFailure(ctx, w, r, err)
		return
	}
	if answer.Context == nil {
		answer.Context = []domain.Document{}
	}
	writeJSON(w, http.StatusOK, answer)
}

func (a *API) writeFailure(ctx context.Context, w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(ctx, err)
	kind := domain.ErrorKind(err)
	if status == http.StatusGatewayTimeout {
		kind = "timeout"
	}
	a.logger.Warn("request failed",
		"req_id", w.Header().Get("X-Request-ID"),
		"path", r.URL.Path,
		"kind", kind,
		"error", err,
	)
	writeError(w, status, kind, err.Error())
}

func statusFor(ctx context.Context, err error) int {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrEmptyIndex):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEmbeddingProvider), errors.Is(err, domain.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, detail string) {
	writeJSON(w, status, apiError{Error: kind, Detail: detail})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	nbytes int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.nbytes += n
	return n, err
}

func (a *API) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		a.logger.Info("http.req",
			"req_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", rec.nbytes,
		)
	})
}
