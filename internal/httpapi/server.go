// Package httpapi exposes retrieval over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"quotesearch/internal/domain"
	"quotesearch/internal/port"
	"quotesearch/internal/render"
)

// Options configures a Server.
type Options struct {
	Format      render.Format // default response format
	DefaultTopK int
	StaticDir   string  // serves index.html and styles.css when set
	RateLimit   float64 // requests per second, 0 = unlimited
	RateBurst   int
	Backend     string // reported by /healthz
	CORSOrigins []string
}

type Server struct {
	retriever port.Retriever
	embedder  port.Embedder
	index     port.VectorIndex
	opts      Options
	limiter   *rate.Limiter
	logger    *slog.Logger
}

func NewServer(retriever port.Retriever, embedder port.Embedder, index port.VectorIndex, opts Options, logger *slog.Logger) *Server {
	if opts.Format == "" {
		opts.Format = render.FormatHTML
	}
	if opts.DefaultTopK < 1 {
		opts.DefaultTopK = domain.DefaultTopK
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		retriever: retriever,
		embedder:  embedder,
		index:     index,
		opts:      opts,
		logger:    logger,
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a retrieval failure to an HTTP status.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, format render.Format, err error) {
	status := statusFor(err)
	detail := domain.DetailOf(err)

	if format == render.FormatJSON {
		writeJSON(w, status, map[string]any{
			"error":  http.StatusText(status),
			"detail": detail,
		})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	fmt.Fprintf(w, "%s: %s\n", http.StatusText(status), detail)
}

// HandleRetrieve serves GET /retrieve?text=&num=&namespace=&format=.
func (s *Server) HandleRetrieve(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	format := s.opts.Format
	text := params.Get("text")
	if strings.TrimSpace(text) == "" {
		s.writeError(w, format, domain.BadRequest("text is required"))
		return
	}

	if raw := params.Get("format"); raw != "" {
		f, err := render.ParseFormat(raw)
		if err != nil {
			s.writeError(w, format, domain.BadRequest(err.Error()))
			return
		}
		format = f
	}

	query := domain.Query{
		Text:      text,
		TopK:      domain.ParseTopK(params.Get("num"), s.opts.DefaultTopK),
		Namespace: params.Get("namespace"),
	}

	result, err := s.retriever.Retrieve(r.Context(), query)
	if err != nil {
		s.writeError(w, format, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)

	switch format {
	case render.FormatJSON:
		err = render.JSON(w, result)
	case render.FormatText:
		err = render.Text(w, result)
	default:
		err = render.HTML(w, result.Query, result.Matches)
	}
	if err != nil {
		s.logger.Error("failed to render response", "format", format, "error", err)
	}
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"ok":       true,
		"time_utc": time.Now().UTC().Format(time.RFC3339),
		"backend":  s.opts.Backend,
	}
	if s.embedder != nil {
		body["model"] = s.embedder.ModelName()
		body["dimension"] = s.embedder.Dimension()
	}

	if s.index == nil {
		body["ok"] = false
		body["error"] = "vector index not initialized"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}

	stats, err := s.index.Stats(r.Context())
	if err != nil {
		s.logger.Warn("health check failed", "error", err)
		body["ok"] = false
		body["error"] = "vector index unavailable"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	body["records"] = stats.Total
	body["namespaces"] = len(stats.Namespaces)
	writeJSON(w, http.StatusOK, body)
}

// HandleRoot serves index.html from the static directory, or a service
// description when none is configured.
func (s *Server) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if s.opts.StaticDir != "" {
		http.ServeFile(w, r, filepath.Join(s.opts.StaticDir, "index.html"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   "quotesearch",
		"ok":        true,
		"endpoints": []string{"/retrieve", "/healthz"},
	})
}

func (s *Server) HandleStyles(w http.ResponseWriter, r *http.Request) {
	if s.opts.StaticDir == "" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.opts.StaticDir, "styles.css"))
}

// Router returns the full handler chain.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.HandleRoot)
	mux.HandleFunc("GET /styles.css", s.HandleStyles)
	mux.HandleFunc("GET /healthz", s.HandleHealth)
	mux.HandleFunc("GET /retrieve", s.HandleRetrieve)

	var h http.Handler = mux
	h = s.rateLimit(h)
	h = s.cors(h)
	h = s.logRequests(h)
	h = requestID(h)
	return h
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}
