package testutil

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"amsportal/internal/database"
	"amsportal/internal/response"
	"amsportal/internal/store"
)

// Credentials of the admin seeded by SetupTestDB.
const (
	AdminUsername = "admin"
	AdminPassword = "password"
)

// IST is the portal's business timezone without relying on tzdata.
var IST = time.FixedZone("IST", 5*3600+1800)

// FixedNow is the clock used by NewStore.
var FixedNow = time.Date(2024, time.March, 15, 10, 30, 0, 0, IST)

// SetupTestDB creates an in-memory SQLite database with the full schema,
// the Direct Applicant agent and the default admin.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	testDB, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })

	if err := database.Seed(context.Background(), testDB, AdminUsername, AdminPassword); err != nil {
		t.Fatalf("Failed to seed test DB: %v", err)
	}
	return testDB
}

// NewStore returns a Store over db whose clock is frozen at FixedNow.
func NewStore(t *testing.T, db *sql.DB) *store.Store {
	t.Helper()
	s := store.New(db, IST, "₹", []string{"Service A", "Service B", "Both"})
	s.Now = func() time.Time { return FixedNow }
	return s
}

// CreateTestAgent inserts an agent and returns its id.
func CreateTestAgent(t *testing.T, db *sql.DB, name string) int {
	t.Helper()
	res, err := db.Exec("INSERT INTO agents (name, phone) VALUES (?, ?)", name, "98765 43210")
	if err != nil {
		t.Fatalf("Failed to create test agent: %v", err)
	}
	id, _ := res.LastInsertId()
	return int(id)
}

// CreateTestApplication creates an application through the store, with an
// optional advance, and returns its id.
func CreateTestApplication(t *testing.T, s *store.Store, agentID int, applicant, cost, advance, received string) int {
	t.Helper()
	id, err := s.CreateApplication(context.Background(), store.NewApplication{
		AgentID:       agentID,
		ApplicantName: applicant,
		AppType:       "Service A",
		Cost:          decimal.RequireFromString(cost),
		Advance:       decimal.RequireFromString(advance),
		ReceivedDate:  received,
	})
	if err != nil {
		t.Fatalf("Failed to create test application: %v", err)
	}
	return id
}

// FormRequest builds a URL-encoded form request carrying the given cookies.
func FormRequest(method, path string, form url.Values, cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

// AssertStatus checks that the HTTP status code matches expected.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// DecodeEnvelope decodes an API response envelope and extracts the data.
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, v interface{}) response.APIResponse {
	t.Helper()
	var resp response.APIResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode API envelope: %v", err)
	}
	if v != nil {
		dataBytes, _ := json.Marshal(resp.Data)
		if err := json.Unmarshal(dataBytes, v); err != nil {
			t.Fatalf("Failed to decode data from envelope: %v", err)
		}
	}
	return resp
}
