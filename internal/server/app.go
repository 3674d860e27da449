package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"amsportal/internal/auth"
	"amsportal/internal/config"
	"amsportal/internal/events"
	"amsportal/internal/export"
	"amsportal/internal/logging"
	"amsportal/internal/metrics"
	"amsportal/internal/portal"
	"amsportal/internal/response"
	"amsportal/internal/store"
)

// Background job schedules and retention.
const (
	SweepSchedule   = "@every 10m"
	LimiterSchedule = "@every 5m"
	SessionRetain   = 24 * time.Hour
	LimiterRetain   = 10 * time.Minute
)

// App holds shared dependencies for the application.
type App struct {
	Config   config.Config
	DB       *sql.DB
	Store    *store.Store
	Sessions *auth.SessionStore
	Limiter  *auth.LoginLimiter
	Hub      *events.Hub
	Log      *logrus.Logger

	cron *cron.Cron
}

// New wires an App over an open, migrated database.
func New(cfg config.Config, db *sql.DB, log *logrus.Logger) *App {
	return &App{
		Config:   cfg,
		DB:       db,
		Store:    store.New(db, cfg.Location(), cfg.CurrencySymbol, cfg.AppTypes),
		Sessions: auth.NewSessionStore(db, cfg.SessionTimeout, cfg.CookieSecure),
		Limiter:  auth.NewLoginLimiter(cfg.LoginRatePerMinute),
		Hub:      events.NewHub(log),
		Log:      log,
	}
}

// Routes builds the HTTP handler.
func (a *App) Routes() http.Handler {
	return a.router()
}

func (a *App) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestLogger(a.Log), Recoverer, SecurityHeaders)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", a.health).Methods(http.MethodGet)

	sess := r.NewRoute().Subrouter()
	sess.Use(a.LoadSession)
	sess.Handle("/ws", a.RequireLogin(a.Hub)).Methods(http.MethodGet)

	pages := sess.NewRoute().Subrouter()
	pages.Use(GzipMiddleware)
	pages.Handle("/export/applications", a.RequireLogin(http.HandlerFunc(a.exportApplications))).Methods(http.MethodGet)
	pages.Handle("/", &portal.Handler{
		Store:    a.Store,
		Sessions: a.Sessions,
		Limiter:  a.Limiter,
		Hub:      a.Hub,
	}).Methods(http.MethodGet, http.MethodPost)

	return r
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.DB.PingContext(ctx); err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("health check")
		response.Err(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	response.JSON(w, map[string]string{"status": "ok"})
}

// exportApplications streams the application list. Without filter_status
// every application is exported.
func (a *App) exportApplications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		response.Err(w, err.Error(), http.StatusBadRequest)
		return
	}
	filter := portal.ApplicationFilterFromQuery(q)
	if _, ok := q["filter_status"]; !ok {
		filter.Status = ""
	}
	apps, err := a.Store.ListApplications(r.Context(), filter)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("export applications")
		response.Err(w, "export failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.FileName()))
	if err := export.Write(w, format, apps); err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("write export")
	}
}

// StartJobs schedules the session sweep and limiter cleanup.
func (a *App) StartJobs() error {
	c := cron.New()
	if _, err := c.AddFunc(SweepSchedule, a.sweepSessions); err != nil {
		return fmt.Errorf("schedule session sweep: %w", err)
	}
	if _, err := c.AddFunc(LimiterSchedule, func() {
		if n := a.Limiter.Cleanup(LimiterRetain); n > 0 {
			a.Log.WithField("removed", n).Debug("login limiter cleanup")
		}
	}); err != nil {
		return fmt.Errorf("schedule limiter cleanup: %w", err)
	}
	c.Start()
	a.cron = c
	return nil
}

func (a *App) sweepSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := a.Sessions.Sweep(ctx, SessionRetain)
	if err != nil {
		a.Log.WithError(err).Error("session sweep")
		return
	}
	metrics.RecordSweep(n)
	if n > 0 {
		a.Log.WithField("removed", n).Info("swept idle sessions")
	}
}

// Serve listens on the configured address until ctx is cancelled, then
// drains in-flight requests and stops the jobs.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         a.Config.Addr,
		Handler:      a.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	if err := a.StartJobs(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.WithField("addr", a.Config.Addr).Info("AMS portal listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		a.stopJobs()
		return err
	case <-ctx.Done():
	}

	a.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	a.stopJobs()
	return err
}

func (a *App) stopJobs() {
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
}
