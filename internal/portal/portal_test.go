package portal_test

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amsportal/internal/auth"
	"amsportal/internal/models"
	"amsportal/internal/portal"
	"amsportal/internal/store"
	"amsportal/internal/testutil"
)

// browser drives the portal like a single browser: it keeps the session
// cookie between requests and controls the session clock.
type browser struct {
	t        *testing.T
	db       *sql.DB
	store    *store.Store
	sessions *auth.SessionStore
	handler  http.Handler
	now      time.Time
	cookie   *http.Cookie
}

func newBrowser(t *testing.T) *browser {
	t.Helper()
	db := testutil.SetupTestDB(t)
	b := &browser{t: t, db: db, store: testutil.NewStore(t, db), now: testutil.FixedNow}
	b.sessions = auth.NewSessionStore(db, 900*time.Second, false)
	b.sessions.Now = func() time.Time { return b.now }

	h := &portal.Handler{Store: b.store, Sessions: b.sessions, Limiter: auth.NewLoginLimiter(5)}
	b.handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := b.sessions.Load(r.Context(), r)
		require.NoError(t, err)
		h.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), s)))
	})
	return b
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}
	w := httptest.NewRecorder()
	b.handler.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.Name != auth.CookieName {
			continue
		}
		if c.Value == "" {
			b.cookie = nil
		} else {
			b.cookie = c
		}
	}
	return w
}

func (b *browser) get(target string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (b *browser) post(form url.Values) *httptest.ResponseRecorder {
	return b.do(testutil.FormRequest(http.MethodPost, "/", form))
}

// view fetches a section and decodes its data into v.
func (b *browser) view(target string, v interface{}) (int, string, *models.Flash, string) {
	b.t.Helper()
	w := b.get(target)
	require.Equal(b.t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeEnvelope(b.t, w, v)
	return w.Code, resp.Section, resp.Flash, resp.CSRFToken
}

// flash returns the flash waiting on the next page load.
func (b *browser) flash() *models.Flash {
	b.t.Helper()
	_, _, f, _ := b.view("/?section=settings", nil)
	return f
}

// login signs in as the seeded admin and returns the CSRF token.
func (b *browser) login() string {
	b.t.Helper()
	w := b.post(url.Values{"login": {"1"}, "username": {testutil.AdminUsername}, "password": {testutil.AdminPassword}})
	require.Equal(b.t, http.StatusSeeOther, w.Code)
	require.Equal(b.t, "/?section=dashboard", w.Header().Get("Location"))
	_, section, _, token := b.view("/?section=dashboard", nil)
	require.Equal(b.t, portal.SectionDashboard, section)
	require.NotEmpty(b.t, token)
	return token
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestAnonymousGetsLoginView(t *testing.T) {
	b := newBrowser(t)
	_, section, flash, token := b.view("/?section=agents", nil)
	assert.Equal(t, portal.SectionLogin, section)
	assert.Nil(t, flash)
	assert.NotEmpty(t, token)
	require.NotNil(t, b.cookie)
}

func TestLogin(t *testing.T) {
	b := newBrowser(t)
	b.login()

	var stats models.DashboardStats
	_, section, _, _ := b.view("/", &stats)
	assert.Equal(t, portal.SectionDashboard, section)
	assert.Equal(t, 1, stats.TotalAgents)
}

func TestLoginRotatesSessionToken(t *testing.T) {
	b := newBrowser(t)
	b.get("/")
	before := b.cookie.Value
	b.login()
	assert.NotEqual(t, before, b.cookie.Value)
}

func TestLoginWrongPassword(t *testing.T) {
	b := newBrowser(t)
	w := b.post(url.Values{"login": {"1"}, "username": {"admin"}, "password": {"nope"}})
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	_, section, flash, _ := b.view("/", nil)
	assert.Equal(t, portal.SectionLogin, section)
	require.NotNil(t, flash)
	assert.Equal(t, models.FlashError, flash.Type)
	assert.Equal(t, auth.MsgInvalidCredentials, flash.Text)
}

func TestLoginThrottled(t *testing.T) {
	b := newBrowser(t)
	for i := 0; i < 5; i++ {
		b.post(url.Values{"login": {"1"}, "username": {"admin"}, "password": {"wrong"}})
	}
	w := b.post(url.Values{"login": {"1"}, "username": {"admin"}, "password": {"password"}})
	assert.Equal(t, "/", w.Header().Get("Location"))

	_, section, flash, _ := b.view("/", nil)
	assert.Equal(t, portal.SectionLogin, section)
	require.NotNil(t, flash)
	assert.Equal(t, portal.MsgTooManyAttempts, flash.Text)
}

func TestLogout(t *testing.T) {
	b := newBrowser(t)
	b.login()

	w := b.get("/?action=logout")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.Nil(t, b.cookie)

	_, section, _, _ := b.view("/", nil)
	assert.Equal(t, portal.SectionLogin, section)
}

func TestIdleSessionExpires(t *testing.T) {
	b := newBrowser(t)
	b.login()

	b.now = b.now.Add(901 * time.Second)
	w := b.get("/?section=applications")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	_, section, flash, _ := b.view("/", nil)
	assert.Equal(t, portal.SectionLogin, section)
	require.NotNil(t, flash)
	assert.Equal(t, models.FlashInfo, flash.Type)
	assert.Equal(t, auth.MsgInactivityLogout, flash.Text)
}

func TestActivityKeepsSessionAlive(t *testing.T) {
	b := newBrowser(t)
	b.login()

	b.now = b.now.Add(900 * time.Second)
	_, section, _, _ := b.view("/?section=agents", nil)
	assert.Equal(t, portal.SectionAgents, section)

	b.now = b.now.Add(600 * time.Second)
	_, section, _, _ = b.view("/?section=agents", nil)
	assert.Equal(t, portal.SectionAgents, section)
}

func TestAnonymousPostIsIgnored(t *testing.T) {
	b := newBrowser(t)
	w := b.post(url.Values{"form_type": {"add_agent"}, "name": {"Ravi"}})
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.Equal(t, 1, countRows(t, b.db, "agents"))
}

func TestPostWithoutCSRFToken(t *testing.T) {
	b := newBrowser(t)
	b.login()

	req := testutil.FormRequest(http.MethodPost, "/", url.Values{"form_type": {"add_agent"}, "name": {"Ravi"}, "redirect_section": {"agents"}})
	req.Header.Set("Referer", "http://example.com/?section=agents")
	w := b.do(req)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/?section=agents", w.Header().Get("Location"))
	assert.Equal(t, 1, countRows(t, b.db, "agents"))

	f := b.flash()
	require.NotNil(t, f)
	assert.Equal(t, models.FlashError, f.Type)
	assert.Equal(t, auth.MsgInvalidToken, f.Text)
}

func TestDeleteWithWrongToken(t *testing.T) {
	b := newBrowser(t)
	b.login()
	agentID := testutil.CreateTestAgent(t, b.db, "Ravi")

	w := b.get("/?action=delete_agent&id=" + itoa(agentID) + "&token=bogus")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/?section=dashboard", w.Header().Get("Location"))
	assert.Equal(t, 2, countRows(t, b.db, "agents"))

	f := b.flash()
	require.NotNil(t, f)
	assert.Equal(t, auth.MsgInvalidToken, f.Text)
}

func TestForeignRefererIsNotFollowed(t *testing.T) {
	b := newBrowser(t)
	b.login()

	req := testutil.FormRequest(http.MethodPost, "/", url.Values{"form_type": {"add_agent"}, "name": {"Ravi"}})
	req.Header.Set("Referer", "https://evil.example.net/phish")
	w := b.do(req)
	assert.Equal(t, "/?section=dashboard", w.Header().Get("Location"))
}

func TestAddAgent(t *testing.T) {
	b := newBrowser(t)
	token := b.login()

	w := b.post(url.Values{"csrf_token": {token}, "form_type": {"add_agent"}, "name": {"Ravi"}, "phone": {"99999 11111"}, "redirect_section": {"agents"}})
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/?section=agents", w.Header().Get("Location"))
	assert.Equal(t, 2, countRows(t, b.db, "agents"))

	var rollups []models.AgentRollup
	_, _, flash, _ := b.view("/?section=agents", &rollups)
	require.NotNil(t, flash)
	assert.Equal(t, models.FlashSuccess, flash.Type)
	assert.Equal(t, portal.MsgAgentAdded, flash.Text)
	assert.Len(t, rollups, 2)
}

func TestAddAgentRequiresName(t *testing.T) {
	b := newBrowser(t)
	token := b.login()

	w := b.post(url.Values{"csrf_token": {token}, "form_type": {"add_agent"}, "name": {"  "}})
	assert.Equal(t, "/?section=dashboard", w.Header().Get("Location"))
	assert.Equal(t, 1, countRows(t, b.db, "agents"))

	f := b.flash()
	require.NotNil(t, f)
	assert.Equal(t, models.FlashError, f.Type)
	assert.Contains(t, f.Text, "name")
}

func TestAddApplicationWithAdvance(t *testing.T) {
	b := newBrowser(t)
	token := b.login()

	w := b.post(url.Values{
		"csrf_token":      {token},
		"form_type":       {"add_application"},
		"applicant_name":  {"Meera Nair"},
		"app_type":        {"Service A"},
		"cost":            {"1500"},
		"advance_payment": {"500"},
		"received_date":   {"2024-03-14"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)
	loc := w.Header().Get("Location")
	require.True(t, strings.HasPrefix(loc, "/?section=application_detail&id="), loc)

	var detail portal.DetailView
	_, section, flash, _ := b.view(loc, &detail)
	assert.Equal(t, portal.SectionApplicationDetail, section)
	require.NotNil(t, flash)
	assert.Equal(t, portal.MsgApplicationCreated, flash.Text)
	require.NotNil(t, detail.ApplicationDetail)
	assert.Equal(t, "Meera Nair", detail.ApplicantName)
	assert.Equal(t, models.DirectApplicantID, detail.AgentID)
	assert.Equal(t, "1000.00", detail.Balance.StringFixed(2))
	assert.Len(t, detail.Payments, 1)
	assert.Len(t, detail.Logs, 2)
	assert.Equal(t, "2024-03-15", detail.Today)
}

func TestAddApplicationInvalidReturnsToSection(t *testing.T) {
	b := newBrowser(t)
	token := b.login()

	w := b.post(url.Values{
		"csrf_token":       {token},
		"form_type":        {"add_application"},
		"applicant_name":   {"Meera"},
		"app_type":         {"Service A"},
		"cost":             {"abc"},
		"received_date":    {"2024-03-14"},
		"redirect_section": {"add_application"},
	})
	assert.Equal(t, "/?section=add_application", w.Header().Get("Location"))
	assert.Equal(t, 0, countRows(t, b.db, "applications"))

	f := b.flash()
	require.NotNil(t, f)
	assert.Equal(t, models.FlashError, f.Type)
}

func TestUpdatePaymentAndLog(t *testing.T) {
	b := newBrowser(t)
	token := b.login()
	appID := testutil.CreateTestApplication(t, b.store, models.DirectApplicantID, "Meera", "1000", "0", "2024-03-01")
	detailURL := portal.DetailURL(appID)

	w := b.post(url.Values{
		"csrf_token":        {token},
		"form_type":         {"update_application"},
		"app_id":            {itoa(appID)},
		"status":            {"Completed"},
		"app_number_update": {"APP-7"},
	})
	assert.Equal(t, detailURL, w.Header().Get("Location"))

	w = b.post(url.Values{
		"csrf_token":   {token},
		"form_type":    {"add_payment"},
		"app_id":       {itoa(appID)},
		"amount":       {"400"},
		"payment_date": {"2024-03-10"},
	})
	assert.Equal(t, detailURL, w.Header().Get("Location"))

	w = b.post(url.Values{
		"csrf_token":  {token},
		"form_type":   {"add_log"},
		"app_id":      {itoa(appID)},
		"description": {"Called the applicant."},
		"update_date": {"2024-03-12"},
		"update_time": {"09:15"},
	})
	assert.Equal(t, detailURL, w.Header().Get("Location"))

	var detail portal.DetailView
	_, _, flash, _ := b.view(detailURL, &detail)
	require.NotNil(t, flash)
	assert.Equal(t, portal.MsgLogAdded, flash.Text)
	assert.Equal(t, models.StatusCompleted, detail.Status)
	require.NotNil(t, detail.CompletedDate)
	assert.Equal(t, "2024-03-15", *detail.CompletedDate)
	assert.Equal(t, "APP-7", detail.AppNumber)
	assert.Equal(t, "600.00", detail.Balance.StringFixed(2))
	assert.Len(t, detail.Logs, 4)
}

func TestPaymentOverUnknownApplication(t *testing.T) {
	b := newBrowser(t)
	token := b.login()

	w := b.post(url.Values{
		"csrf_token":   {token},
		"form_type":    {"add_payment"},
		"app_id":       {"999"},
		"amount":       {"100"},
		"payment_date": {"2024-03-10"},
	})
	assert.Equal(t, portal.DetailURL(999), w.Header().Get("Location"))
	assert.Equal(t, 0, countRows(t, b.db, "payments"))

	f := b.flash()
	require.NotNil(t, f)
	assert.Equal(t, store.MsgApplicationNotFound, f.Text)
}

func TestUnknownFormType(t *testing.T) {
	b := newBrowser(t)
	token := b.login()

	w := b.post(url.Values{"csrf_token": {token}, "form_type": {"drop_tables"}})
	assert.Equal(t, "/?section=dashboard", w.Header().Get("Location"))

	f := b.flash()
	require.NotNil(t, f)
	assert.Equal(t, portal.MsgUnknownCommand, f.Text)
}

func TestUpdateSettings(t *testing.T) {
	tests := []struct {
		name      string
		form      url.Values
		flashType string
		flashText string
		username  string
	}{
		{
			name:      "wrong current password",
			form:      url.Values{"current_password": {"bad"}, "new_username": {"boss"}},
			flashType: models.FlashError,
			flashText: store.MsgWrongCurrentPassword,
			username:  "admin",
		},
		{
			name:      "password mismatch",
			form:      url.Values{"current_password": {"password"}, "new_password": {"longenough1"}, "confirm_password": {"longenough2"}},
			flashType: models.FlashError,
			flashText: store.MsgPasswordMismatch,
			username:  "admin",
		},
		{
			name:      "nothing to change",
			form:      url.Values{"current_password": {"password"}, "new_username": {"admin"}},
			flashType: models.FlashInfo,
			flashText: store.MsgNoChanges,
			username:  "admin",
		},
		{
			name:      "rename",
			form:      url.Values{"current_password": {"password"}, "new_username": {"boss"}},
			flashType: models.FlashSuccess,
			flashText: portal.MsgSettingsUpdated,
			username:  "boss",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBrowser(t)
			token := b.login()

			form := tt.form
			form.Set("csrf_token", token)
			form.Set("form_type", "update_settings")
			w := b.post(form)
			assert.Equal(t, "/?section=settings", w.Header().Get("Location"))

			var v portal.SettingsView
			_, _, flash, _ := b.view("/?section=settings", &v)
			require.NotNil(t, flash)
			assert.Equal(t, tt.flashType, flash.Type)
			assert.Equal(t, tt.flashText, flash.Text)
			assert.Equal(t, tt.username, v.Username)
		})
	}
}

func TestDeleteDefaultAgentRefused(t *testing.T) {
	b := newBrowser(t)
	token := b.login()

	w := b.get("/?action=delete_agent&id=1&token=" + token)
	assert.Equal(t, "/?section=agents", w.Header().Get("Location"))
	assert.Equal(t, 1, countRows(t, b.db, "agents"))

	f := b.flash()
	require.NotNil(t, f)
	assert.Equal(t, store.MsgCannotDeleteDefault, f.Text)
}

func TestDeleteAgentReassigns(t *testing.T) {
	b := newBrowser(t)
	token := b.login()
	agentID := testutil.CreateTestAgent(t, b.db, "Ravi")
	appID := testutil.CreateTestApplication(t, b.store, agentID, "Meera", "1000", "0", "2024-03-01")

	w := b.get("/?action=delete_agent&id=" + itoa(agentID) + "&token=" + token)
	assert.Equal(t, "/?section=agents", w.Header().Get("Location"))

	var owner int
	require.NoError(t, b.db.QueryRow("SELECT agent_id FROM applications WHERE app_id = ?", appID).Scan(&owner))
	assert.Equal(t, models.DirectApplicantID, owner)

	f := b.flash()
	require.NotNil(t, f)
	assert.Equal(t, portal.MsgAgentDeleted, f.Text)
}

func TestDeleteApplication(t *testing.T) {
	b := newBrowser(t)
	token := b.login()
	appID := testutil.CreateTestApplication(t, b.store, models.DirectApplicantID, "Meera", "1000", "250", "2024-03-01")

	w := b.get("/?action=delete_application&id=" + itoa(appID) + "&token=" + token)
	assert.Equal(t, "/?section=applications", w.Header().Get("Location"))
	assert.Equal(t, 0, countRows(t, b.db, "applications"))
	assert.Equal(t, 0, countRows(t, b.db, "payments"))
	assert.Equal(t, 0, countRows(t, b.db, "application_logs"))

	f := b.flash()
	require.NotNil(t, f)
	assert.Equal(t, portal.MsgApplicationPurged, f.Text)
}

func TestApplicationsView(t *testing.T) {
	b := newBrowser(t)
	b.login()
	pending := testutil.CreateTestApplication(t, b.store, models.DirectApplicantID, "Meera", "1000", "0", "2024-03-01")
	done := testutil.CreateTestApplication(t, b.store, models.DirectApplicantID, "Arjun", "500", "0", "2024-03-02")
	require.NoError(t, b.store.UpdateApplication(t.Context(), store.ApplicationUpdate{AppID: done, Status: models.StatusCompleted}))

	var v portal.ApplicationsView
	_, section, _, _ := b.view("/?section=applications", &v)
	assert.Equal(t, portal.SectionApplications, section)
	assert.Equal(t, models.StatusFilterActive, v.FilterStatus)
	require.Len(t, v.Applications, 1)
	assert.Equal(t, pending, v.Applications[0].ID)
	assert.Len(t, v.Agents, 1)
	assert.Len(t, v.Statuses, 4)

	v = portal.ApplicationsView{}
	b.view("/?section=applications&filter_status=", &v)
	assert.Len(t, v.Applications, 2)
}

func TestAddApplicationView(t *testing.T) {
	b := newBrowser(t)
	b.login()

	var v portal.AddApplicationView
	b.view("/?section=add_application", &v)
	assert.Equal(t, []string{"Service A", "Service B", "Both"}, v.AppTypes)
	assert.Equal(t, "2024-03-15", v.Today)
	assert.Len(t, v.Agents, 1)
}

func TestUnknownSectionFallsBackToDashboard(t *testing.T) {
	b := newBrowser(t)
	b.login()
	_, section, _, _ := b.view("/?section=nonsense", nil)
	assert.Equal(t, portal.SectionDashboard, section)
}

func TestMissingApplicationDetail(t *testing.T) {
	b := newBrowser(t)
	b.login()

	w := b.get("/?section=application_detail&id=404")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/?section=applications", w.Header().Get("Location"))

	_, section, flash, _ := b.view("/?section=applications", nil)
	assert.Equal(t, portal.SectionApplications, section)
	require.NotNil(t, flash)
	assert.Equal(t, store.MsgApplicationNotFound, flash.Text)
}

func TestSectionURL(t *testing.T) {
	assert.Equal(t, "/?section=agents", portal.SectionURL("agents"))
	assert.Equal(t, "/?section=dashboard", portal.SectionURL(""))
	assert.Equal(t, "/?section=dashboard", portal.SectionURL("application_detail"))
	assert.Equal(t, "/?section=application_detail&id=3", portal.DetailURL(3))
	assert.Equal(t, "/?section=applications", portal.DetailURL(0))
}

func itoa(n int) string { return strconv.Itoa(n) }
