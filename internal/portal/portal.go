// Package portal is the single entry point of the admin UI. It enforces the
// session and CSRF rules, dispatches mutating commands, and renders section
// views as JSON for the presentation layer.
package portal

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"amsportal/internal/apperr"
	"amsportal/internal/auth"
	"amsportal/internal/events"
	"amsportal/internal/logging"
	"amsportal/internal/metrics"
	"amsportal/internal/models"
	"amsportal/internal/store"
)

// MsgTooManyAttempts is flashed when the login limiter trips.
const MsgTooManyAttempts = "Too many login attempts. Please wait a minute and try again."

// Sections served by the portal.
const (
	SectionLogin             = "login"
	SectionDashboard         = "dashboard"
	SectionApplications      = "applications"
	SectionAddApplication    = "add_application"
	SectionApplicationDetail = "application_detail"
	SectionAgents            = "agents"
	SectionSettings          = "settings"
)

var sections = map[string]bool{
	SectionDashboard:         true,
	SectionApplications:      true,
	SectionAddApplication:    true,
	SectionApplicationDetail: true,
	SectionAgents:            true,
	SectionSettings:          true,
}

// SectionURL returns the portal URL of section, or the dashboard for an
// unknown or empty section.
func SectionURL(section string) string {
	if !sections[section] || section == SectionApplicationDetail {
		section = SectionDashboard
	}
	return "/?section=" + section
}

// DetailURL returns the detail view of an application.
func DetailURL(appID int) string {
	if appID <= 0 {
		return SectionURL(SectionApplications)
	}
	return "/?section=" + SectionApplicationDetail + "&id=" + strconv.Itoa(appID)
}

// Handler serves "/".
type Handler struct {
	Store    *store.Store
	Sessions *auth.SessionStore
	Limiter  *auth.LoginLimiter
	Hub      *events.Hub
}

// ServeHTTP runs the request through the session gate and then either a
// command or a view. The session must already be on the request context.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)
	s := auth.FromContext(ctx)
	if s == nil {
		log.Error("portal request without session")
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	if h.Sessions.Expired(s) {
		h.expire(w, r, s)
		return
	}
	if s.LoggedIn {
		h.Sessions.Touch(s)
	}

	query := r.URL.Query()
	action := query.Get("action")

	if action == "logout" {
		if err := h.Sessions.Destroy(ctx, w, s); err != nil {
			log.WithError(err).Error("logout")
		}
		log.WithField("username", s.Username).Info("logged out")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			s.SetFlash(models.FlashError, "Could not read the submitted form.")
			h.redirect(w, r, s, SectionURL(SectionDashboard))
			return
		}
		if r.PostForm.Get("login") != "" {
			h.login(w, r, s)
			return
		}
	}

	if !s.LoggedIn {
		if r.Method == http.MethodPost {
			h.redirect(w, r, s, "/")
			return
		}
		h.render(w, r, s, SectionLogin, nil)
		return
	}

	isDelete := strings.HasPrefix(action, "delete_")
	if r.Method == http.MethodPost || isDelete {
		submitted := query.Get("token")
		if r.Method == http.MethodPost {
			submitted = r.PostForm.Get("csrf_token")
		}
		if err := s.CheckCSRF(submitted); err != nil {
			log.WithField("action", action).Warn("csrf check failed")
			metrics.RecordCommand(commandLabel(action, r.PostForm.Get("form_type")), apperr.KindCSRF.String())
			s.SetFlash(models.FlashError, apperr.Message(err))
			h.redirect(w, r, s, refererTarget(r))
			return
		}
	}

	switch {
	case isDelete:
		cmd, err := DecodeDelete(action, query)
		h.execute(w, r, s, cmd, err)
	case r.Method == http.MethodPost:
		cmd, err := DecodeForm(r.PostForm)
		h.execute(w, r, s, cmd, err)
	default:
		h.view(w, r, s, query)
	}
}

func commandLabel(action, formType string) string {
	if action != "" {
		return action
	}
	if formType != "" {
		return formType
	}
	return "unknown"
}

// expire discards an idle session and starts an anonymous one carrying the
// inactivity notice.
func (h *Handler) expire(w http.ResponseWriter, r *http.Request, s *auth.Session) {
	ctx := r.Context()
	log := logging.FromContext(ctx)
	if err := h.Sessions.Destroy(ctx, w, s); err != nil {
		log.WithError(err).Error("destroy expired session")
	}
	log.WithField("username", s.Username).Info("session expired")

	fresh, err := h.Sessions.New()
	if err != nil {
		log.WithError(err).Error("new session")
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	expired := apperr.SessionExpired(auth.MsgInactivityLogout)
	fresh.SetFlash(flashType(expired), apperr.Message(expired))
	h.redirect(w, r, fresh, "/")
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request, s *auth.Session) {
	ctx := r.Context()
	ip := clientIP(r)
	username := strings.TrimSpace(r.PostForm.Get("username"))
	log := logging.FromContext(ctx).WithFields(logrus.Fields{"username": username, "ip": ip})

	if h.Limiter != nil && !h.Limiter.Allow(ip) {
		metrics.RecordLogin("throttled")
		log.Warn("login throttled")
		s.SetFlash(models.FlashError, MsgTooManyAttempts)
		h.redirect(w, r, s, "/")
		return
	}

	if err := auth.Authenticate(ctx, h.Store.DB, username, r.PostForm.Get("password")); err != nil {
		metrics.RecordLogin("failed")
		log.WithError(err).Warn("login failed")
		s.SetFlash(models.FlashError, apperr.Message(err))
		h.redirect(w, r, s, "/")
		return
	}

	if err := h.Sessions.Login(ctx, s, username); err != nil {
		log.WithError(err).Error("start session")
		s.SetFlash(models.FlashError, apperr.Message(err))
		h.redirect(w, r, s, "/")
		return
	}
	metrics.RecordLogin("ok")
	log.Info("logged in")
	h.redirect(w, r, s, SectionURL(SectionDashboard))
}

// execute runs cmd and turns its result into exactly one flash and a redirect.
func (h *Handler) execute(w http.ResponseWriter, r *http.Request, s *auth.Session, cmd Command, err error) {
	ctx := r.Context()
	name := "unknown"
	target := SectionURL(SectionDashboard)
	if cmd != nil {
		name = cmd.Name()
		target = cmd.failTarget()
	}
	log := logging.FromContext(ctx).WithField("command", name)

	var out outcome
	if err == nil {
		out, err = cmd.run(ctx, h.Store, s)
	}
	if err != nil {
		kind := apperr.KindOf(err)
		metrics.RecordCommand(name, kind.String())
		if kind == apperr.KindDatabase {
			log.WithError(err).Error("command failed")
		} else {
			log.WithError(err).Info("command rejected")
		}
		s.SetFlash(flashType(err), apperr.Message(err))
		h.redirect(w, r, s, target)
		return
	}

	metrics.RecordCommand(name, "ok")
	if out.event != nil {
		log = log.WithFields(logrus.Fields{"event": out.event.Type, "id": out.event.ID})
	}
	log.Info(out.message)
	if out.event != nil && h.Hub != nil {
		h.Hub.Broadcast(*out.event)
	}
	s.SetFlash(models.FlashSuccess, out.message)
	h.redirect(w, r, s, out.target)
}

// flashType maps an error to the flash it is reported with.
func flashType(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindNoChange, apperr.KindSessionExpired:
		return models.FlashInfo
	}
	return models.FlashError
}

// redirect persists s and sends a 303 to target.
func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, s *auth.Session, target string) {
	if err := h.Sessions.Save(r.Context(), w, s); err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("save session")
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// refererTarget returns the same-origin Referer path, or the dashboard.
func refererTarget(r *http.Request) string {
	ref := r.Referer()
	if ref == "" {
		return SectionURL(SectionDashboard)
	}
	u, err := url.Parse(ref)
	if err != nil || (u.Host != "" && u.Host != r.Host) || !strings.HasPrefix(u.Path, "/") {
		return SectionURL(SectionDashboard)
	}
	if u.RawQuery == "" {
		return u.Path
	}
	return u.Path + "?" + u.RawQuery
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
