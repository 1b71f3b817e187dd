package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"firewatch/internal/metrics"
	"firewatch/internal/models"
	"firewatch/internal/services"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RequestIDHeader carries the per-request correlation id
const RequestIDHeader = "X-Request-ID"

// IngestService is the ingestion pipeline seen by the HTTP layer
type IngestService interface {
	Predict(ctx context.Context, raw models.RawInput) (services.IngestResult, error)
	Save(ctx context.Context, raw models.RawInput, status string) (services.IngestResult, error)
	Snapshot() (latest models.Reading, ok bool, all []models.Reading)
}

// Buzzer is the actuator state
type Buzzer interface {
	Set(mode string) (models.BuzzerMode, error)
	Get() models.BuzzerMode
}

// Pinger reports relational store reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr         string
	CORSOrigins  []string
	LogPath      string // CSV log served by /api/logs; empty disables the route
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns default configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         ":5000",
		CORSOrigins:  []string{"*"},
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

type HTTPServer struct {
	server  *http.Server
	router  *mux.Router
	ingest  IngestService
	buzzer  Buzzer
	pinger  Pinger
	metrics *metrics.Metrics
	logger  zerolog.Logger
	logPath string
}

// NewHTTPServer builds the router. pinger may be nil when no relational
// store is configured.
func NewHTTPServer(
	config ServerConfig,
	ingest IngestService,
	buzzer Buzzer,
	pinger Pinger,
	m *metrics.Metrics,
	log zerolog.Logger,
) *HTTPServer {
	router := mux.NewRouter()

	s := &HTTPServer{
		router:  router,
		ingest:  ingest,
		buzzer:  buzzer,
		pinger:  pinger,
		metrics: m,
		logger:  log.With().Str("component", "http").Logger(),
		logPath: config.LogPath,
	}

	router.Use(s.requestIDMiddleware)
	router.Use(s.metricsMiddleware)
	router.Use(s.loggingMiddleware)

	router.HandleFunc("/", s.home).Methods(http.MethodGet)
	router.HandleFunc("/api/predict", s.predict).Methods(http.MethodPost)
	router.HandleFunc("/api/save-data", s.saveData).Methods(http.MethodPost)
	router.HandleFunc("/latest", s.latest).Methods(http.MethodGet)
	router.HandleFunc("/buzzer/{mode}", s.setBuzzer).Methods(http.MethodPost)
	router.HandleFunc("/device/commands", s.deviceCommands).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.readyz).Methods(http.MethodGet)
	if s.logPath != "" {
		router.HandleFunc("/api/logs", s.logs).Methods(http.MethodGet)
	}

	router.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	origins := config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	handler := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", RequestIDHeader}),
		handlers.ExposedHeaders([]string{RequestIDHeader, SkippedRowsHeader}),
	)(router)
	handler = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.logger}))(handler)

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// Handler returns the fully wrapped handler
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// responseWriter tracks the status code and body size
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

type requestIDKey struct{}

// RequestID returns the correlation id stored by the middleware
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *HTTPServer) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// metricsMiddleware labels requests with the route template
func (s *HTTPServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}

		s.metrics.HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.logger.Info().
			Str("request_id", RequestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("ip", r.RemoteAddr).
			Str("user_agent", r.UserAgent()).
			Int("status", rw.statusCode).
			Int("response_size", rw.size).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

type recoveryLogger struct {
	log zerolog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error().Interface("panic", v).Msg("Recovered from handler panic")
}
