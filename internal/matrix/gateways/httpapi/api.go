// Package httpapi is the JSON control surface of a policy service.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/haukened/rr-matrix/internal/matrix/common/log"
	"github.com/haukened/rr-matrix/internal/matrix/domain"
	"github.com/haukened/rr-matrix/internal/matrix/services/classifier"
	"github.com/haukened/rr-matrix/internal/matrix/services/policy"
	"github.com/haukened/rr-matrix/internal/matrix/services/snapshot"
)

// maxBodyBytes bounds request bodies; backups carry whole rule sets.
const maxBodyBytes = 8 << 20

// Policy is the service surface the API drives.
type Policy interface {
	Snapshot(pageURL string) *snapshot.Snapshot
	Groups(pageURL string) classifier.Groups
	RequestLog(pageURL string) ([]domain.Request, bool)
	ClearRequestLog(pageURL string) bool
	FilterRequest(pageURL string, t domain.RequestType, requestURL string) (domain.Decision, error)
	Evaluate(scope, host string, t domain.RequestType) (temporary, permanent domain.Color)
	ToggleSwitch(scope string) (bool, error)
	BlockCell(scope, host string, t domain.RequestType) error
	AllowCell(scope, host string, t domain.RequestType) error
	GraylistCell(scope, host string, t domain.RequestType) error
	ClearCell(scope, host string, t domain.RequestType) bool
	PendingDiff(pageURL string) []domain.DiffEntry
	Persist(ctx context.Context, diff []domain.DiffEntry) (bool, error)
	RevertScope(diff []domain.DiffEntry) bool
	RevertAll()
	UserRules() policy.RuleTexts
	SetUserRules(ctx context.Context, u policy.RuleTextsUpdate) (policy.RuleTexts, error)
	ScopeLevel() domain.ScopeLevel
	SetScopeLevel(l domain.ScopeLevel)
	Backup() policy.UserData
	Restore(ctx context.Context, ud policy.UserData) error
	Reset(ctx context.Context) error
	Stats() policy.Stats
}

var _ Policy = (*policy.Service)(nil)

type Options struct {
	Policy  Policy
	Logger  log.Logger
	Metrics http.Handler
}

type API struct {
	policy Policy
	logger log.Logger
}

// NewRouter builds the chi router. Metrics, when set, is mounted at /metrics.
func NewRouter(opts Options) http.Handler {
	a := &API{policy: opts.Policy, logger: opts.Logger}
	if a.logger == nil {
		a.logger = log.NewNoopLogger()
	}

	r := chi.NewRouter()
	r.Use(a.logRequests)
	r.Use(limitBody)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/snapshot", a.getSnapshot)
		r.Get("/groups", a.getGroups)
		r.Get("/requests", a.getRequests)
		r.Delete("/requests", a.clearRequests)
		r.Post("/filter", a.filter)
		r.Get("/evaluate", a.evaluate)
		r.Post("/switch/toggle", a.toggleSwitch)
		r.Post("/cells", a.setCell)
		r.Get("/diff", a.getDiff)
		r.Post("/persist", a.persist)
		r.Post("/revert", a.revert)
		r.Post("/revert-all", a.revertAll)
		r.Get("/rules", a.getRules)
		r.Put("/rules", a.putRules)
		r.Get("/settings/scope-level", a.getScopeLevel)
		r.Put("/settings/scope-level", a.putScopeLevel)
		r.Get("/backup", a.backup)
		r.Post("/restore", a.restore)
		r.Post("/reset", a.reset)
		r.Get("/stats", a.stats)
	})
	return r
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Debug(map[string]any{
			"method":  r.Method,
			"path":    r.URL.Path,
			"elapsed": time.Since(start).String(),
		}, "http_request")
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidScope),
		errors.Is(err, domain.ErrInvalidHostname),
		errors.Is(err, domain.ErrInvalidType),
		errors.Is(err, domain.ErrInvalidHue),
		errors.Is(err, domain.ErrInvalidLevel),
		errors.Is(err, policy.ErrInvalidUserData):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
