package service

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kkkkikiki/campaign/internal/rpc"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	// Limiter is optional; nil disables rate limiting.
	Limiter *RateLimiter
	DB      Pinger
	// LogRequests adds an access log line per request.
	LogRequests bool
}

// NewRouter mounts the campaign service next to the health and metrics
// endpoints.
func NewRouter(srv *CampaignServer, opts RouterOptions) http.Handler {
	interceptors := []connect.Interceptor{NewAuthInterceptor()}
	if opts.Limiter != nil {
		interceptors = append(interceptors, opts.Limiter.Interceptor())
	}
	path, handler := rpc.NewCampaignServiceHandler(srv, connect.WithInterceptors(interceptors...))

	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	if opts.LogRequests {
		r.Use(chimw.Logger)
	}
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Content-Type", "Connect-Protocol-Version", "Connect-Timeout-Ms", UserIDHeader,
		},
		ExposedHeaders: []string{"Grpc-Status", "Grpc-Message"},
		MaxAge:         300,
	}))

	r.Mount(path, handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		hostname, _ := os.Hostname()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","service":"campaign-engine","hostname":%q}`, hostname)
	})

	r.Get("/health/db", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.DB == nil || opts.DB.Ping(r.Context()) != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"error","message":"database unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","database":"connected"}`))
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
