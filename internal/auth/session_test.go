package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amsportal/internal/apperr"
	"amsportal/internal/auth"
	"amsportal/internal/models"
	"amsportal/internal/testutil"
)

func newSessionStore(t *testing.T, now *time.Time) *auth.SessionStore {
	t.Helper()
	db := testutil.SetupTestDB(t)
	st := auth.NewSessionStore(db, 15*time.Minute, false)
	st.Now = func() time.Time { return *now }
	return st
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie set", auth.CookieName)
	return nil
}

func TestSessionRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	st := newSessionStore(t, &now)
	ctx := context.Background()

	// No cookie yields a fresh anonymous session.
	s, err := st.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.False(t, s.LoggedIn)
	assert.NotEmpty(t, s.CSRFToken)

	s.SetFlash(models.FlashInfo, "hello")
	w := httptest.NewRecorder()
	require.NoError(t, st.Save(ctx, w, s))
	cookie := sessionCookie(t, w)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	loaded, err := st.Load(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, s.Token, loaded.Token)
	assert.Equal(t, s.CSRFToken, loaded.CSRFToken)
	assert.Equal(t, models.Flash{Type: models.FlashInfo, Text: "hello"}, loaded.PopFlash())
	assert.True(t, loaded.Flash.Empty())
}

func TestSessionUnknownCookieStartsFresh(t *testing.T) {
	now := time.Now()
	st := newSessionStore(t, &now)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: "forged"})
	s, err := st.Load(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, "forged", s.Token)
	assert.False(t, s.LoggedIn)
}

func TestSessionLoginRotatesToken(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	st := newSessionStore(t, &now)
	ctx := context.Background()

	s, err := st.New()
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, httptest.NewRecorder(), s))
	oldToken, csrf := s.Token, s.CSRFToken

	require.NoError(t, st.Login(ctx, s, "admin"))
	assert.NotEqual(t, oldToken, s.Token)
	assert.Equal(t, csrf, s.CSRFToken)
	assert.True(t, s.LoggedIn)
	assert.Equal(t, "admin", s.Username)

	var n int
	require.NoError(t, st.DB.QueryRow("SELECT COUNT(*) FROM sessions WHERE token = ?", oldToken).Scan(&n))
	assert.Zero(t, n)
}

func TestSessionExpiry(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	st := newSessionStore(t, &now)

	s, err := st.New()
	require.NoError(t, err)
	assert.False(t, st.Expired(s), "anonymous sessions never expire")

	s.LoggedIn = true
	st.Touch(s)
	now = now.Add(15 * time.Minute)
	assert.False(t, st.Expired(s), "exactly the timeout is still active")
	now = now.Add(time.Second)
	assert.True(t, st.Expired(s))

	st.Touch(s)
	assert.False(t, st.Expired(s))
}

func TestSessionCheckCSRF(t *testing.T) {
	s := &auth.Session{CSRFToken: "abc123"}
	assert.NoError(t, s.CheckCSRF("abc123"))
	err := s.CheckCSRF("abc124")
	assert.ErrorIs(t, err, apperr.CSRF(auth.MsgInvalidToken))
	assert.Error(t, s.CheckCSRF(""))

	empty := &auth.Session{}
	assert.Error(t, empty.CheckCSRF(""))
}

func TestSessionSweepAndDestroy(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	st := newSessionStore(t, &now)
	ctx := context.Background()

	stale, err := st.New()
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, httptest.NewRecorder(), stale))

	now = now.Add(25 * time.Hour)
	fresh, err := st.New()
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, httptest.NewRecorder(), fresh))

	removed, err := st.Sweep(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	w := httptest.NewRecorder()
	require.NoError(t, st.Destroy(ctx, w, fresh))
	assert.Equal(t, -1, sessionCookie(t, w).MaxAge)

	var n int
	require.NoError(t, st.DB.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&n))
	assert.Zero(t, n)
}

func TestSessionContext(t *testing.T) {
	s := &auth.Session{Token: "t"}
	ctx := auth.WithSession(context.Background(), s)
	assert.Same(t, s, auth.FromContext(ctx))
	assert.Nil(t, auth.FromContext(context.Background()))
}
