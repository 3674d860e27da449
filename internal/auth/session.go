package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"amsportal/internal/apperr"
	"amsportal/internal/models"
)

// CookieName is the session cookie.
const CookieName = "ams_session"

// MsgInactivityLogout is flashed after an idle session is discarded.
const MsgInactivityLogout = "You were automatically logged out due to inactivity."

// MsgInvalidToken is flashed when a mutating request fails the CSRF check.
const MsgInvalidToken = "Invalid security token. Please try again."

// Session is the per-browser state. Anonymous visitors get one too so the
// login form can carry a CSRF token and a flash message.
type Session struct {
	Token        string
	CSRFToken    string
	Username     string
	LoggedIn     bool
	Flash        models.Flash
	CreatedAt    time.Time
	LastActivity time.Time
}

// SetFlash replaces the pending flash message.
func (s *Session) SetFlash(typ, text string) {
	s.Flash = models.Flash{Type: typ, Text: text}
}

// PopFlash returns the pending flash message and clears it.
func (s *Session) PopFlash() models.Flash {
	f := s.Flash
	s.Flash = models.Flash{}
	return f
}

// CheckCSRF verifies a submitted token against the session token.
func (s *Session) CheckCSRF(submitted string) error {
	if !TokensEqual(s.CSRFToken, submitted) {
		return apperr.CSRF(MsgInvalidToken)
	}
	return nil
}

// SessionStore keeps sessions in the sessions table.
type SessionStore struct {
	DB      *sql.DB
	Timeout time.Duration
	Secure  bool
	Now     func() time.Time
}

// NewSessionStore creates a SessionStore with the wall clock.
func NewSessionStore(db *sql.DB, timeout time.Duration, secure bool) *SessionStore {
	return &SessionStore{DB: db, Timeout: timeout, Secure: secure, Now: time.Now}
}

func (st *SessionStore) now() time.Time {
	if st.Now != nil {
		return st.Now()
	}
	return time.Now()
}

// New creates an anonymous session. It is persisted by Save.
func (st *SessionStore) New() (*Session, error) {
	token, err := GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	csrf, err := GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate csrf token: %w", err)
	}
	now := st.now()
	return &Session{Token: token, CSRFToken: csrf, CreatedAt: now, LastActivity: now}, nil
}

// Load returns the session named by the request cookie, or a new anonymous
// session when the cookie is missing or unknown.
func (st *SessionStore) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return st.New()
	}
	var s Session
	var loggedIn int
	var created, last int64
	err = st.DB.QueryRowContext(ctx, `SELECT token, csrf_token, username, logged_in, flash_type, flash_text, created_at, last_activity
		FROM sessions WHERE token = ?`, cookie.Value).
		Scan(&s.Token, &s.CSRFToken, &s.Username, &loggedIn, &s.Flash.Type, &s.Flash.Text, &created, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return st.New()
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	s.LoggedIn = loggedIn == 1
	s.CreatedAt = time.Unix(created, 0)
	s.LastActivity = time.Unix(last, 0)
	return &s, nil
}

// Save persists the session and refreshes the cookie.
func (st *SessionStore) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	loggedIn := 0
	if s.LoggedIn {
		loggedIn = 1
	}
	_, err := st.DB.ExecContext(ctx, `INSERT INTO sessions (token, csrf_token, username, logged_in, flash_type, flash_text, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET csrf_token = excluded.csrf_token, username = excluded.username,
			logged_in = excluded.logged_in, flash_type = excluded.flash_type, flash_text = excluded.flash_text,
			last_activity = excluded.last_activity`,
		s.Token, s.CSRFToken, s.Username, loggedIn, s.Flash.Type, s.Flash.Text, s.CreatedAt.Unix(), s.LastActivity.Unix())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   st.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Destroy deletes the session row and expires the cookie.
func (st *SessionStore) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if _, err := st.DB.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", s.Token); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   st.Secure,
		MaxAge:   -1,
	})
	return nil
}

// Expired reports whether a logged-in session has been idle past the timeout.
func (st *SessionStore) Expired(s *Session) bool {
	return s.LoggedIn && st.now().Sub(s.LastActivity) > st.Timeout
}

// Touch records activity on the session.
func (st *SessionStore) Touch(s *Session) {
	s.LastActivity = st.now()
}

// Login marks s as authenticated for username under a fresh session token.
// The old row is removed; the CSRF token is kept for the life of the browser
// session.
func (st *SessionStore) Login(ctx context.Context, s *Session, username string) error {
	if _, err := st.DB.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", s.Token); err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	token, err := GenerateToken()
	if err != nil {
		return fmt.Errorf("generate session token: %w", err)
	}
	s.Token = token
	s.Username = username
	s.LoggedIn = true
	s.LastActivity = st.now()
	return nil
}

// Sweep removes sessions idle for longer than idle and returns how many went.
func (st *SessionStore) Sweep(ctx context.Context, idle time.Duration) (int64, error) {
	cutoff := st.now().Add(-idle).Unix()
	res, err := st.DB.ExecContext(ctx, "DELETE FROM sessions WHERE last_activity < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return res.RowsAffected()
}

type ctxKey struct{}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session attached by WithSession, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}
