package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/tote/internal/config"
	"github.com/hpungsan/tote/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

const shutdownTimeout = 5 * time.Second

// NewServer creates and configures the HTTP server for the cart UI.
// userID selects the remote cart; empty means the guest cart.
func NewServer(sc *session.ShoppingCart, cfg *config.Config, log *zap.Logger, version, userID string) *http.Server {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("web")

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.WebBind, cfg.WebPort),
		Handler:           newRouter(newHandlers(sc, log, version, userID), log),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newHandlers(sc *session.ShoppingCart, log *zap.Logger, version, userID string) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	// Strip the "templates/" prefix
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		panic(fmt.Sprintf("template sub-FS: %v", err))
	}

	return &Handlers{
		cart:     sc,
		user:     userID,
		log:      log,
		renderer: NewRenderer(templateSub, version, log),
	}
}

func newRouter(h *Handlers, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(fmt.Sprintf("static sub-FS: %v", err))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/cart", http.StatusFound)
	})
	r.Get("/healthz", h.HandleHealth)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.HandleShow)
		r.Post("/clear", h.HandleClear)
		r.Post("/items", h.HandleAdd)
		r.Route("/items/{productID}", func(r chi.Router) {
			r.Delete("/", h.HandleRemove)
			r.Post("/remove", h.HandleRemove) // plain HTML forms cannot send DELETE
			r.Post("/increment", h.HandleIncrement)
			r.Post("/decrement", h.HandleDecrement)
		})
	})

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return r
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

// requestLogger logs one line per request at debug level.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// Run starts the HTTP server and shuts it down gracefully on SIGINT/SIGTERM
// or when ctx is cancelled.
func Run(ctx context.Context, srv *http.Server, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info("tote UI running", zap.String("addr", "http://"+srv.Addr))
	if strings.HasPrefix(srv.Addr, "0.0.0.0:") || strings.HasPrefix(srv.Addr, "[::]:") || strings.HasPrefix(srv.Addr, ":") {
		log.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	return g.Wait()
}
