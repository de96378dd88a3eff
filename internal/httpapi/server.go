package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"factod/internal/compile"
	"factod/internal/stats"
	"factod/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Compile(ctx context.Context, source string, opts compile.Options, emit compile.EmitFunc) error
	Connect() stats.Snapshot
	Stats() stats.Snapshot
	QueueBusy() bool
}

// Options tunes transport-level behavior of the mux.
type Options struct {
	// RateLimitRequests per RateLimitWindow per client IP; zero
	// disables rate limiting.
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewMux builds the router: health and readiness probes, the streaming
// and buffered compile endpoints, stats, and Prometheus metrics.
func NewMux(svc Service, opts Options) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(securityHeaders)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "X-Log-Level"},
			AllowCredentials: false,
			MaxAge:           86400,
		}))
	}

	limiter := newRateLimiter(opts.RateLimitRequests, opts.RateLimitWindow)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.HealthResponse{Status: "ok", Busy: svc.QueueBusy()})
	})

	r.Post("/connect", func(w http.ResponseWriter, r *http.Request) {
		snap := svc.Connect()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{"connected": true, "stats": snap}); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Stats()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.middleware)
		}
		r.Post("/compile", func(w http.ResponseWriter, r *http.Request) {
			handleCompileStream(svc, w, r)
		})
		r.Post("/compile/sync", func(w http.ResponseWriter, r *http.Request) {
			handleCompileSync(svc, w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// Admission control happens per request inside the
		// orchestrator; the server itself is always ready.
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		next.ServeHTTP(w, r)
	})
}

// decodeCompileRequest parses and minimally validates the request body.
func decodeCompileRequest(w http.ResponseWriter, r *http.Request) (types.CompileRequest, bool) {
	var req types.CompileRequest
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return req, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	return req, true
}

func compileOptions(req types.CompileRequest) compile.Options {
	return compile.Options{
		PowerPoles: req.PowerPoles,
		Name:       req.BlueprintName,
		NoOptimize: req.NoOptimize,
		JSONOutput: req.JSONOutput,
		LogLevel:   req.LogLevel,
	}
}

// handleCompileStream streams compilation events as Server-Sent Events.
// The stream always finishes with an explicit end marker so consumers
// do not have to rely on connection close.
//
// @Summary      Compile source to a blueprint (streaming)
// @Description  Streams log, status, queue, json, blueprint and error events as SSE, terminated by an end event.
// @Tags         compile
// @Accept       json
// @Produce      text/event-stream
// @Param        request  body  types.CompileRequest  true  "compile request"
// @Success      200  {string}  string  "SSE stream"
// @Failure      400  {object}  types.ErrorResponse
// @Router       /compile [post]
func handleCompileStream(svc Service, w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCompileRequest(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// Disable nginx buffering so events reach the client immediately.
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	lvl := requestLogLevel(r)
	var debugLog *sseLineWriter
	if lvl >= LevelDebug {
		debugLog = &sseLineWriter{}
	}
	start := time.Now()
	if lvl >= LevelInfo {
		logCompileStart(r, len(req.Source))
	}

	emit := func(ev compile.Event) error {
		b, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if debugLog != nil {
			debugLog.Write(append(b, '\n')) //nolint:errcheck
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return err
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return err
		}
		if canFlush {
			flusher.Flush()
		}
		return nil
	}

	joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	err := svc.Compile(joinedCtx, req.Source, compileOptions(req), emit)
	if err != nil {
		// Emit errors mean the client went away; everything else is
		// reported inside the stream.
		if lvl >= LevelInfo {
			logCompileEnd(r, start, "disconnected", err)
		}
		return
	}
	_ = emit(compile.Event{Type: compile.EventEnd})
	if lvl >= LevelInfo {
		logCompileEnd(r, start, "done", nil)
	}
}

// handleCompileSync buffers the whole event stream and answers with a
// single JSON document, for clients that cannot consume SSE.
//
// @Summary      Compile source to a blueprint (buffered)
// @Tags         compile
// @Accept       json
// @Produce      json
// @Param        request  body  types.CompileRequest  true  "compile request"
// @Success      200  {object}  types.SyncCompileResponse
// @Failure      400  {object}  types.ErrorResponse
// @Router       /compile/sync [post]
func handleCompileSync(svc Service, w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCompileRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	lvl := requestLogLevel(r)
	if lvl >= LevelInfo {
		logCompileStart(r, len(req.Source))
	}

	resp := types.SyncCompileResponse{Logs: []string{}, Errors: []string{}}
	emit := func(ev compile.Event) error {
		switch ev.Type {
		case compile.EventLog:
			resp.Logs = append(resp.Logs, ev.Content)
		case compile.EventBlueprint:
			resp.Blueprint = ev.Content
			resp.Success = true
		case compile.EventJSON:
			resp.JSON = ev.Content
		case compile.EventError:
			resp.Errors = append(resp.Errors, ev.Content)
		case compile.EventStatus:
			resp.Status = ev.Content
		}
		return nil
	}

	joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	if err := svc.Compile(joinedCtx, req.Source, compileOptions(req), emit); err != nil {
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !req.JSONOutput {
		resp.JSON = ""
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		return
	}
	if lvl >= LevelInfo {
		logCompileEnd(r, start, "done", nil)
	}
}

func logCompileStart(r *http.Request, sourceLen int) {
	if zlog != nil {
		z := zlog.Info().Str("path", r.URL.Path).Str("remote", r.RemoteAddr).Int("source_len", sourceLen)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Msg("compile start")
		return
	}
	log.Printf("compile start path=%s remote=%s source_len=%d", r.URL.Path, r.RemoteAddr, sourceLen)
}

func logCompileEnd(r *http.Request, start time.Time, outcome string, err error) {
	if zlog != nil {
		z := zlog.Info().Str("path", r.URL.Path).Str("outcome", outcome).Dur("dur", time.Since(start))
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		if err != nil {
			z = z.Err(err)
		}
		z.Msg("compile end")
		return
	}
	log.Printf("compile end path=%s outcome=%s dur=%s err=%v", r.URL.Path, outcome, time.Since(start), err)
}
