package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/metrics"
	"tiendapos/backend/internal/report"
	"tiendapos/backend/internal/service"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/xid"
)

const (
	defaultLoginRateLimit = 5
	managerPINRateLimit   = 8
	maxBodyBytes          = 1 << 20
)

type API struct {
	service        *service.Service
	auth           *AuthManager
	metrics        *metrics.Metrics
	allowedOrigin  string
	loginRateLimit int
	validate       *validator.Validate
}

type Option func(*API)

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *API) { a.metrics = m }
}

// WithLoginRateLimit caps login attempts per client IP per minute.
func WithLoginRateLimit(perMinute int) Option {
	return func(a *API) {
		if perMinute > 0 {
			a.loginRateLimit = perMinute
		}
	}
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, opts ...Option) *API {
	a := &API{
		service:        svc,
		auth:           auth,
		allowedOrigin:  allowedOrigin,
		loginRateLimit: defaultLoginRateLimit,
		validate:       newValidator(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// newValidator registers decimal.Decimal as a number so tags like gte=100
// apply to money fields.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(a.securityHeaders)
	r.Use(a.metrics.Middleware)
	r.Use(requestLogger)

	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", a.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.With(a.rateLimit(a.loginRateLimit, httprate.KeyByIP)).Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)
			admin := requireRole(domain.RoleAdmin)

			r.With(admin).Get("/users/cashiers", a.handleListCashiers)
			r.With(admin).Post("/users/cashiers", a.handleCreateCashier)

			r.Get("/products", a.handleListProducts)
			r.With(admin).Post("/products", a.handleCreateProduct)
			r.With(admin).Post("/products/{id}/restock", a.handleRestockProduct)

			r.Get("/persons", a.handleListPersons)
			r.Post("/persons", a.handleCreatePerson)

			r.Route("/sales", func(r chi.Router) {
				r.Get("/", a.handleListSales)
				r.Post("/", a.handleRegisterSale)
				r.Get("/reportByWeek", a.handleWeeklyRevenue)
				r.Get("/topSales", a.handleTopClients)
				r.Get("/topCategories", a.handleTopCategories)
				r.Get("/topCategoriesByWeek", a.handleTopCategoriesByWeek)
				r.Get("/totalSales", a.handleTotalSales)
				r.Get("/totalRevenue", a.handleTotalRevenue)
				r.Get("/totalProducts", a.handleTotalProducts)
				r.Get("/totalClients", a.handleTotalClients)
				r.Get("/{id}", a.handleGetSale)
				r.With(a.rateLimit(managerPINRateLimit, actorKey)).Delete("/{id}", a.handleDeleteSale)
			})

			r.Route("/cashRegister", func(r chi.Router) {
				r.Get("/", a.handleListCashRegisters)
				r.With(admin).Post("/", a.handleCreateCashRegister)
				r.With(admin).Put("/", a.handleUpdateCashRegister)

				r.Post("/turn/{id}", a.handleRecordWithdrawal)
				r.Post("/turn/{id}/imbalance", a.handleRecordImbalance)
				r.Get("/turn/{id}/withdrawals", a.handleTurnWithdrawals)
				r.Get("/turn/{id}/sales", a.handleTurnSales)
				r.Get("/turn/{id}/imbalances", a.handleTurnImbalances)

				r.Get("/{id}", a.handleGetCashRegister)
				r.Post("/{id}", a.handleOpenTurn)
				r.Put("/{id}", a.handleCloseTurn)
				r.With(admin).Delete("/{id}", a.handleDeleteCashRegister)
				r.Get("/{id}/turn", a.handleActiveTurn)
				r.Get("/{id}/withdrawals", a.handleRegisterWithdrawals)
			})

			r.With(admin).Get("/withdrawals", a.handleListWithdrawals)
			r.With(admin).Get("/audit-logs", a.handleAuditLogs)
		})
	})

	return r
}

func (a *API) rateLimit(perMinute int, key httprate.KeyFunc) func(http.Handler) http.Handler {
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, errors.New("too many attempts"))
		}),
	)
}

func actorKey(r *http.Request) (string, error) {
	if actor, ok := service.ActorFromContext(r.Context()); ok && actor.Username != "" {
		return "user:" + actor.Username, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := service.ActorFromContext(r.Context())
			if !ok || !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Manager-PIN")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Str("component", "http").
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(startedAt)).
			Msg("request")
	})
}

// decodeAndValidate rejects unknown fields and runs the validator tags. It
// writes the error response itself and reports whether the handler may go on.
func (a *API) decodeAndValidate(w http.ResponseWriter, r *http.Request, dest any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return false
	}
	if err := a.validate.Struct(dest); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, err)
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Namespace()] = fe.Tag()
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": fields,
		})
		return false
	}
	return true
}

// pathID reads a uuid path parameter and answers 400 when it is malformed.
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !xid.Valid(id) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid id: %q", id))
		return "", false
	}
	return id, true
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// statusFor maps core errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrProductNotFound),
		errors.Is(err, store.ErrSaleNotFound),
		errors.Is(err, store.ErrPersonNotFound),
		errors.Is(err, store.ErrRegisterNotFound),
		errors.Is(err, store.ErrTurnNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrActiveTurnExists),
		errors.Is(err, store.ErrTurnClosed),
		errors.Is(err, store.ErrTurnAlreadyClosed),
		errors.Is(err, store.ErrRegisterHasSales):
		return http.StatusConflict
	case errors.Is(err, store.ErrPriceMismatch), errors.Is(err, store.ErrInvalidSale):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrInvalidTransaction), errors.Is(err, report.ErrInvalidWindow):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		log.Error().Str("component", "http").Int("status", status).Err(err).Msg("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
