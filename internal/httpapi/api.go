// Package httpapi is the HTTP layer: routing, authentication middleware and
// the response envelope around the lead, notification and auth services.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"leadline.io/internal/auth"
	"leadline.io/internal/leads"
	"leadline.io/internal/notify"
	"leadline.io/internal/obs"
	"leadline.io/internal/stream"
)

// ReadyProbe checks external dependencies for /readyz. A nil DB reports ready,
// which is what the in-memory configuration wants.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

type API struct {
	router     *mux.Router
	auth       *auth.Service
	leads      *leads.Service
	notify     *notify.Service
	stream     *stream.Router
	readyProbe ReadyProbe
	version    string

	rateBurst    int
	ratePerSec   int
	maxBodyBytes int64
}

func New(rp ReadyProbe, version string, authSvc *auth.Service, leadSvc *leads.Service, notifySvc *notify.Service, streamRouter *stream.Router) *API {
	a := &API{
		router:       mux.NewRouter(),
		auth:         authSvc,
		leads:        leadSvc,
		notify:       notifySvc,
		stream:       streamRouter,
		readyProbe:   rp,
		version:      version,
		rateBurst:    50,
		ratePerSec:   25,
		maxBodyBytes: 1 << 20,
	}

	a.router.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	a.router.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	a.router.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	v1 := a.router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/auth/register", a.handleRegister).Methods(http.MethodPost)
	v1.HandleFunc("/auth/login", a.handleLogin).Methods(http.MethodPost)
	v1.HandleFunc("/auth/profile", a.handleGetProfile).Methods(http.MethodGet)
	v1.HandleFunc("/auth/profile", a.handleUpdateProfile).Methods(http.MethodPut)

	v1.HandleFunc("/leads", a.handleListLeads).Methods(http.MethodGet)
	v1.HandleFunc("/leads", a.handleCreateLead).Methods(http.MethodPost)
	v1.HandleFunc("/leads/{id}", a.handleGetLead).Methods(http.MethodGet)
	v1.HandleFunc("/leads/{id}", a.handleUpdateLead).Methods(http.MethodPut)
	v1.HandleFunc("/leads/{id}", a.handleDeleteLead).Methods(http.MethodDelete)

	v1.HandleFunc("/leads/{id}/activities", a.handleListActivities).Methods(http.MethodGet)
	v1.HandleFunc("/leads/{id}/activities", a.handleAddActivity).Methods(http.MethodPost)
	v1.HandleFunc("/activities/{id}", a.handleUpdateActivity).Methods(http.MethodPut)
	v1.HandleFunc("/activities/{id}", a.handleDeleteActivity).Methods(http.MethodDelete)

	v1.HandleFunc("/notifications", a.handleListNotifications).Methods(http.MethodGet)
	v1.HandleFunc("/notifications/read-all", a.handleMarkAllRead).Methods(http.MethodPost)
	v1.HandleFunc("/notifications/{id}/read", a.handleMarkRead).Methods(http.MethodPost)

	v1.HandleFunc("/dashboard/stats", a.handleDashboardStats).Methods(http.MethodGet)

	v1.HandleFunc("/events", a.handleEvents).Methods(http.MethodGet)

	a.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	})
	a.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methodNotAllowed(w, r)
	})

	return a
}

// SetLimits overrides the default rate-limit and body-size settings. Zero
// values keep the defaults.
func (a *API) SetLimits(burst, perSec int, maxBodyBytes int64) {
	if burst > 0 {
		a.rateBurst = burst
	}
	if perSec > 0 {
		a.ratePerSec = perSec
	}
	if maxBodyBytes > 0 {
		a.maxBodyBytes = maxBodyBytes
	}
}

// Handler returns the full middleware chain around the router.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "leadline-api",
		"version": a.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
