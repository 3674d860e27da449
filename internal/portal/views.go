package portal

import (
	"net/http"
	"net/url"
	"strconv"

	"amsportal/internal/apperr"
	"amsportal/internal/auth"
	"amsportal/internal/logging"
	"amsportal/internal/models"
	"amsportal/internal/response"
)

// ApplicationsView is the data of the applications section.
type ApplicationsView struct {
	Applications []models.Application `json:"applications"`
	Agents       []models.Agent       `json:"agents"`
	Search       string               `json:"search"`
	FilterAgent  int                  `json:"filter_agent"`
	FilterStatus string               `json:"filter_status"`
	Statuses     []models.Status      `json:"statuses"`
}

// AddApplicationView is the data of the new-application form.
type AddApplicationView struct {
	Agents   []models.Agent `json:"agents"`
	AppTypes []string       `json:"app_types"`
	Today    string         `json:"today"`
}

// DetailView is the data of the application detail section.
type DetailView struct {
	*models.ApplicationDetail
	Payments []models.Payment `json:"payments"`
	Statuses []models.Status  `json:"statuses"`
	Today    string           `json:"today"`
}

// SettingsView is the data of the settings section.
type SettingsView struct {
	Username string `json:"username"`
}

// ApplicationFilterFromQuery reads the list filters. A missing filter_status
// means active applications; an empty one means all.
func ApplicationFilterFromQuery(q url.Values) models.ApplicationFilter {
	f := models.ApplicationFilter{Search: q.Get("search"), Status: models.StatusFilterActive}
	if v, ok := q["filter_status"]; ok && len(v) > 0 {
		f.Status = v[0]
	}
	if id, err := strconv.Atoi(q.Get("filter_agent")); err == nil && id > 0 {
		f.AgentID = id
	}
	return f
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request, s *auth.Session, q url.Values) {
	ctx := r.Context()
	section := q.Get("section")
	if !sections[section] {
		section = SectionDashboard
	}

	var data any
	var err error
	switch section {
	case SectionDashboard:
		data, err = h.Store.Dashboard(ctx)

	case SectionApplications:
		f := ApplicationFilterFromQuery(q)
		v := ApplicationsView{Search: f.Search, FilterAgent: f.AgentID, FilterStatus: f.Status, Statuses: models.Statuses}
		if v.Applications, err = h.Store.ListApplications(ctx, f); err == nil {
			v.Agents, err = h.Store.ListAgents(ctx)
		}
		data = v

	case SectionAddApplication:
		v := AddApplicationView{AppTypes: h.Store.AppTypes, Today: h.Store.Today()}
		v.Agents, err = h.Store.ListAgents(ctx)
		data = v

	case SectionApplicationDetail:
		id, _ := strconv.Atoi(q.Get("id"))
		v := DetailView{Statuses: models.Statuses, Today: h.Store.Today()}
		if v.ApplicationDetail, err = h.Store.GetApplicationDetail(ctx, id); err == nil {
			v.Payments, err = h.Store.ListPayments(ctx, id)
		}
		data = v

	case SectionAgents:
		data, err = h.Store.AgentRollups(ctx)

	case SectionSettings:
		data = SettingsView{Username: s.Username}
	}

	if err != nil {
		if apperr.KindOf(err) == apperr.KindDatabase {
			logging.FromContext(ctx).WithError(err).WithField("section", section).Error("view query failed")
		}
		s.SetFlash(models.FlashError, apperr.Message(err))
		fallback := SectionURL(SectionDashboard)
		if section == SectionDashboard {
			fallback = SectionURL(SectionSettings)
		}
		if section == SectionApplicationDetail {
			fallback = SectionURL(SectionApplications)
		}
		h.redirect(w, r, s, fallback)
		return
	}
	h.render(w, r, s, section, data)
}

// render pops the flash, persists the session and writes the view envelope.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, s *auth.Session, section string, data any) {
	resp := response.APIResponse{Section: section, Data: data, CSRFToken: s.CSRFToken, Username: s.Username}
	if f := s.PopFlash(); !f.Empty() {
		resp.Flash = &f
	}
	if err := h.Sessions.Save(r.Context(), w, s); err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("save session")
		response.Err(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	response.Write(w, http.StatusOK, resp)
}
