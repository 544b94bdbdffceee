package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpmw "github.com/cwrk-planet/race-service/internal/transport/http/middleware"
)

type Deps struct {
	Handler        *Handler
	WS             http.HandlerFunc
	AllowedOrigins []string
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(httpmw.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(httpmw.Logging)

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{httpmw.HeaderRequestID},
		MaxAge:         300,
	}))

	// long-lived; kept outside the timeout group
	if d.WS != nil {
		r.Get("/ws", d.WS)
	}

	r.Group(func(pr chi.Router) {
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		pr.Route("/races/{id}", func(rr chi.Router) {
			rr.Get("/leaderboard", d.Handler.Leaderboard)
			rr.Get("/presence", d.Handler.Presence)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
