// Package server exposes the settlement engine over HTTP.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/iwvelando/settlement-optimizer/internal/compiler"
	"github.com/iwvelando/settlement-optimizer/internal/model"
	"github.com/iwvelando/settlement-optimizer/internal/settlement"
	"github.com/iwvelando/settlement-optimizer/internal/source"
	"github.com/iwvelando/settlement-optimizer/internal/synth"
	"github.com/iwvelando/settlement-optimizer/pkg/constants"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Options configure the handler.
type Options struct {
	MaxUploadSize int64
	Version       string
	// Lambda is used when a solve request does not carry one.
	Lambda      float64
	Parallelism int
	// Gatherer serves /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

type handler struct {
	logger *zap.Logger
	engine *settlement.Engine
	opts   Options
}

// NewHandler constructs the HTTP handler serving the settlement API.
func NewHandler(logger *zap.Logger, engine *settlement.Engine, opts Options) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = constants.DefaultMaxUploadSizeBytes
	}
	opts.Version = strings.TrimSpace(opts.Version)
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = constants.DefaultParallelism
	}

	h := &handler{logger: logger, engine: engine, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.handleHealth)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/version", h.handleVersion)
		r.Post("/solve", h.handleSolve)
		r.Post("/generate", h.handleGenerate)
		r.Post("/ledger", h.handleLedger)
	})
	return r
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug("request served",
			zap.String("op", "server.logRequests"),
			zap.String("requestId", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) handleVersion(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.opts.Version,
	})
}

type solveRequest struct {
	Input      *model.Input        `json:"input" yaml:"input"`
	Lambda     *float64            `json:"lambda,omitempty" yaml:"lambda,omitempty"`
	Extensions compiler.Extensions `json:"extensions" yaml:"extensions"`
}

type solveResponse struct {
	Status   string             `json:"status"`
	Result   *settlement.Result `json:"result,omitempty"`
	Warnings []string           `json:"warnings,omitempty"`
	Duration string             `json:"duration"`
}

func (h *handler) handleSolve(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleSolve"
	start := time.Now()

	var req solveRequest
	if status, err := h.decodeBody(w, r, &req); err != nil {
		h.respondError(w, status, err.Error(), op)
		return
	}
	if req.Input == nil {
		h.respondError(w, http.StatusBadRequest, "request has no input bundle", op)
		return
	}

	opts := compiler.Options{Lambda: h.opts.Lambda, Extensions: req.Extensions}
	if req.Lambda != nil {
		opts.Lambda = *req.Lambda
	}
	if err := opts.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), op)
		return
	}

	res, err := h.engine.Run(r.Context(), req.Input, opts)
	resp := solveResponse{Warnings: req.Input.Warnings()}
	switch {
	case err == nil:
		resp.Status = res.Status
		resp.Result = res
	case errors.Is(err, settlement.ErrInfeasible):
		resp.Status = "infeasible"
	case errors.Is(err, settlement.ErrAborted):
		resp.Status = "aborted"
	case errors.Is(err, settlement.ErrSolver):
		h.respondError(w, http.StatusInternalServerError, err.Error(), op)
		return
	default:
		h.respondError(w, http.StatusUnprocessableEntity, err.Error(), op)
		return
	}
	resp.Duration = time.Since(start).String()
	h.writeJSON(w, http.StatusOK, resp)
}

type generateRequest struct {
	Seed   int64               `json:"seed" yaml:"seed"`
	Params *synth.RandomParams `json:"params,omitempty" yaml:"params,omitempty"`
}

func (h *handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleGenerate"

	var req generateRequest
	if status, err := h.decodeBody(w, r, &req); err != nil {
		h.respondError(w, status, err.Error(), op)
		return
	}
	params := synth.DefaultRandomParams()
	if req.Params != nil {
		params = *req.Params
	}

	in, err := synth.Random(rand.New(rand.NewSource(req.Seed)), params)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), op)
		return
	}
	h.writeJSON(w, http.StatusOK, in)
}

type ledgerResponse struct {
	Summary  settlement.Summary `json:"summary"`
	Batches  []ledgerBatch      `json:"batches"`
	Duration string             `json:"duration"`
}

type ledgerBatch struct {
	Index   int                 `json:"index"`
	Trades  int                 `json:"trades"`
	Status  string              `json:"status"`
	Metrics *settlement.Metrics `json:"metrics,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// handleLedger accepts a trade ledger CSV as the "file" form field, splits
// it into batches and settles each one with bundles estimated from the
// trades. The query parameters seed and batchSize are optional.
func (h *handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleLedger"
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadSize)
	if err := r.ParseMultipartForm(h.opts.MaxUploadSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds limit of %d bytes", h.opts.MaxUploadSize), op)
			return
		}
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse upload: %v", err), op)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "missing ledger file", op)
		return
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			h.logger.Warn("failed to close uploaded file",
				zap.String("op", op),
				zap.Error(closeErr),
			)
		}
	}()

	seed, batchSize, err := ledgerQuery(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), op)
		return
	}

	inputs, err := source.FromLedger(h.logger, rand.New(rand.NewSource(seed)), file, batchSize)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), op)
		return
	}

	outcomes, err := h.engine.RunBatches(r.Context(), inputs, compiler.Options{Lambda: h.opts.Lambda}, h.opts.Parallelism)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error(), op)
		return
	}

	resp := ledgerResponse{Summary: settlement.Summarize(outcomes)}
	for i, o := range outcomes {
		b := ledgerBatch{Index: o.Index, Trades: len(inputs[i].Transactions)}
		switch {
		case o.Result != nil:
			b.Status = o.Result.Status
			b.Metrics = &o.Result.Metrics
		case errors.Is(o.Err, settlement.ErrInfeasible):
			b.Status = "infeasible"
		case errors.Is(o.Err, settlement.ErrAborted):
			b.Status = "aborted"
		default:
			b.Status = "failed"
			b.Error = o.Err.Error()
		}
		resp.Batches = append(resp.Batches, b)
	}
	resp.Duration = time.Since(start).String()
	h.writeJSON(w, http.StatusOK, resp)
}

func ledgerQuery(r *http.Request) (int64, int, error) {
	seed := int64(1)
	batchSize := constants.DefaultBatchSize
	q := r.URL.Query()
	if v := q.Get("seed"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid seed %q", v)
		}
		seed = n
	}
	if v := q.Get("batchSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, fmt.Errorf("invalid batch size %q", v)
		}
		batchSize = n
	}
	return seed, batchSize, nil
}

// decodeBody reads a JSON or YAML request body depending on its content
// type. The returned status is meaningful only with a non-nil error.
func (h *handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) (int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadSize)
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r.Body); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return http.StatusRequestEntityTooLarge, fmt.Errorf("request exceeds limit of %d bytes", h.opts.MaxUploadSize)
		}
		return http.StatusBadRequest, fmt.Errorf("failed to read request: %w", err)
	}
	if buf.Len() == 0 {
		return http.StatusBadRequest, errors.New("request body is empty")
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml":
		if err := yaml.Unmarshal(buf.Bytes(), dst); err != nil {
			return http.StatusBadRequest, fmt.Errorf("invalid YAML body: %w", err)
		}
	default:
		dec := json.NewDecoder(&buf)
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil {
			return http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err)
		}
	}
	return 0, nil
}

func (h *handler) respondError(w http.ResponseWriter, status int, msg string, op string) {
	h.logger.Error("request failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("error", msg),
	)
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}
