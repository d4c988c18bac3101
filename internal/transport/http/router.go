package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"palcro/internal/domain"
	"palcro/internal/dto"
	"palcro/internal/observability/metrics"
	obsmw "palcro/internal/observability/middleware"
	"palcro/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	CORSOrigins []string
	// ValidateRatePerMin limits the anonymous validate path per client IP.
	ValidateRatePerMin int
}

func NewRouter(svc service.LicenseService, admin func(http.Handler) http.Handler, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(obsmw.WithRequestID)
	r.Use(obsmw.WithMetrics)

	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())

	// Admin surface. The middleware trusts tokens from the external auth
	// service; nothing here mints them.
	r.Group(func(pr chi.Router) {
		pr.Use(admin)
		pr.Post("/v1/license/issue", issueHandler(svc))
		pr.Post("/v1/license/revoke", revokeHandler(svc))
	})

	// Public runtime check path, rate limited per IP.
	r.Group(func(pub chi.Router) {
		if opts.ValidateRatePerMin > 0 {
			pub.Use(httprate.LimitByIP(opts.ValidateRatePerMin, time.Minute))
		}
		pub.Post("/v1/license/validate", validateHandler(svc))
	})

	return r
}

func issueHandler(svc service.LicenseService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := obsmw.RequestIDFromContext(r.Context())

		var req dto.IssueRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				metrics.KeysIssuedTotal.WithLabelValues("failure").Inc()
				slog.Warn("issue decode failed", "error", err, "request_id", reqID)
				return
			}
		}

		res, err := svc.Issue(r.Context(), req)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, service.ErrInvalidRequest) {
				status = http.StatusBadRequest
			}
			http.Error(w, err.Error(), status)
			metrics.KeysIssuedTotal.WithLabelValues("failure").Inc()
			slog.Warn("issue failed", "error", err, "request_id", reqID)
			return
		}
		metrics.KeysIssuedTotal.WithLabelValues("success").Inc()
		writeJSON(w, http.StatusCreated, res)
	}
}

func validateHandler(svc service.LicenseService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := obsmw.RequestIDFromContext(r.Context())

		var req dto.ValidateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			metrics.ValidationsTotal.WithLabelValues("bad_request").Inc()
			return
		}

		res, err := svc.Validate(r.Context(), req)
		if err != nil {
			if errors.Is(err, service.ErrInvalidRequest) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				metrics.ValidationsTotal.WithLabelValues("bad_request").Inc()
				return
			}
			// Storage trouble is retryable and must not read as a denial.
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			metrics.ValidationsTotal.WithLabelValues("error").Inc()
			slog.Error("validate storage failure", "error", err, "request_id", reqID)
			return
		}

		if !res.Granted {
			metrics.ValidationsTotal.WithLabelValues(res.Reason).Inc()
			writeJSON(w, http.StatusForbidden, res)
			return
		}
		metrics.ValidationsTotal.WithLabelValues("granted").Inc()
		writeJSON(w, http.StatusOK, res)
	}
}

func revokeHandler(svc service.LicenseService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := obsmw.RequestIDFromContext(r.Context())

		var req dto.RevokeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			metrics.RevocationsTotal.WithLabelValues("failure").Inc()
			return
		}

		if err := svc.Revoke(r.Context(), req.Key); err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, service.ErrInvalidRequest):
				status = http.StatusBadRequest
			case errors.Is(err, domain.ErrKeyNotFound):
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			metrics.RevocationsTotal.WithLabelValues("failure").Inc()
			slog.Warn("revoke failed", "error", err, "request_id", reqID)
			return
		}
		metrics.RevocationsTotal.WithLabelValues("success").Inc()
		writeJSON(w, http.StatusOK, dto.RevokeResponse{Success: true})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}
