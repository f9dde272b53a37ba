package web

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/harulua/coreheart/internal/config"
	"github.com/harulua/coreheart/internal/db"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 2 << 20

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 5 * time.Second

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Handlers contains HTTP route handlers for the API and the HTML pages.
type Handlers struct {
	st       *db.Store
	cfg      *config.Config
	renderer *Renderer
	version  string
}

// NewRouter builds the chi router with every route and middleware installed.
func NewRouter(st *db.Store, cfg *config.Config, version string) http.Handler {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		panic(err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}

	h := &Handlers{
		st:       st,
		cfg:      cfg,
		renderer: NewRenderer(templateSub, version),
		version:  version,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(cors)
	r.Use(securityHeaders)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)

		r.Get("/breath-log.json", h.HandleBreathLog)
		r.Post("/breath", h.HandleSubmitBreath)
		r.Post("/breath/log", h.HandleSubmitBreath)
		r.Post("/breath/consume", h.HandleConsumeBreath)
		r.Get("/breath/recent", h.HandleRecentBreaths)

		r.Get("/inhale/recent", h.HandleRecentInhales)
		r.Get("/inhale/{id}", h.HandleGetBreath)
		r.Delete("/inhale/{id}", h.HandleDeleteBreath)

		r.Get("/purify-bin", h.HandleListPurify)
		r.Post("/purify-bin/move", h.HandleMoveToPurify)
		r.Post("/purify-bin/restore", h.HandleRestoreFromPurify)
		r.Post("/purify-bin/send-to-meeting", h.HandleSendToMeeting)
		r.Post("/purify-bin/delete", h.HandleDeletePurified)

		r.Post("/meetings", h.HandleCreateMeeting)
		r.Get("/meetings/{id}", h.HandleGetMeeting)
		r.Post("/meetings/{id}/after-language", h.HandleReviseMeeting)

		r.Get("/central/definitions", h.HandleListDefinitions)
		r.Post("/central/definitions", h.HandleWriteDefinition)
		r.Post("/central/promote", h.HandlePromote)

		r.Get("/hacoin/ledger", h.HandleLedger)
		r.Post("/hacoin/event", h.HandlePostEvent)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/central", http.StatusFound)
	})
	r.Get("/central", h.HandleCentralPage)
	r.Get("/meetings/{id}", h.HandleMeetingPage)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return r
}

// NewServer creates the HTTP server listening on cfg.ListenAddr().
func NewServer(st *db.Store, cfg *config.Config, version string) *http.Server {
	return &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           NewRouter(st, cfg, version),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

type ctxKey int

const requestIDKey ctxKey = iota

// requestID tags each request with an id, reusing a client-supplied X-Request-Id.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestLogger writes one log line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestId", requestIDFrom(r.Context()),
		)
	})
}

// cors allows any origin, matching the app clients that call the API directly.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	slog.Info("coreheart server running", "addr", "http://"+srv.Addr)

	if strings.HasPrefix(srv.Addr, "0.0.0.0") || strings.HasPrefix(srv.Addr, "[::]") || strings.HasPrefix(srv.Addr, ":") {
		slog.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-sigCh:
		slog.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
