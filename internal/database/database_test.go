package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"amsportal/internal/models"
)

func TestOpenMigratesSchema(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"agents", "admin_users", "applications", "payments", "application_logs", "sessions"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		assert.NoError(t, err, table)
	}

	require.NoError(t, Migrate(context.Background(), db), "migrate twice")
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Seed(ctx, db, "admin", "password"))
	require.NoError(t, Seed(ctx, db, "other", "ignored"))

	var name string
	require.NoError(t, db.QueryRow("SELECT name FROM agents WHERE agent_id = ?", models.DirectApplicantID).Scan(&name))
	assert.Equal(t, models.DirectApplicantName, name)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM admin_users").Scan(&count))
	assert.Equal(t, 1, count)

	var hash string
	require.NoError(t, db.QueryRow("SELECT password_hash FROM admin_users WHERE username = 'admin'").Scan(&hash))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("password")))
}

func TestSchemaConstraints(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Seed(context.Background(), db, "admin", "password"))

	_, err = db.Exec(`INSERT INTO applications (agent_id, applicant_name, app_type, cost, status, received_date)
		VALUES (1, 'A', 'Service A', 10, 'Done', '2024-01-01')`)
	assert.Error(t, err, "status check")

	_, err = db.Exec(`INSERT INTO applications (agent_id, applicant_name, app_type, cost, received_date)
		VALUES (99, 'A', 'Service A', 10, '2024-01-01')`)
	assert.Error(t, err, "agent foreign key")

	_, err = db.Exec(`INSERT INTO payments (agent_id, app_id, amount, payment_date) VALUES (1, 1, 5, '2024-01-01')`)
	assert.Error(t, err, "application foreign key")
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ams.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, Seed(context.Background(), db, "admin", "password"))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM agents").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestBuildDSN(t *testing.T) {
	dsn, memory := buildDSN(":memory:")
	assert.True(t, memory)
	assert.NotContains(t, dsn, "_txlock")

	dsn, memory = buildDSN("/var/lib/ams/portal.db")
	assert.False(t, memory)
	assert.Equal(t, "/var/lib/ams/portal.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_txlock=immediate", dsn)

	dsn, _ = buildDSN("portal.db?cache=shared")
	assert.Contains(t, dsn, "portal.db?cache=shared&_pragma=foreign_keys(1)")
}

func TestConcurrentWritersWait(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "ams.db"))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	tx1, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = tx1.Exec("INSERT INTO agents (name) VALUES ('First')")
	require.NoError(t, err)

	// The second writer reads before writing, like the store's mutations.
	errs := make(chan error, 1)
	go func() {
		tx2, err := db.BeginTx(ctx, nil)
		if err != nil {
			errs <- err
			return
		}
		var n int
		if err := tx2.QueryRow("SELECT COUNT(*) FROM agents").Scan(&n); err != nil {
			tx2.Rollback()
			errs <- err
			return
		}
		if _, err := tx2.Exec("INSERT INTO agents (name) VALUES ('Second')"); err != nil {
			tx2.Rollback()
			errs <- err
			return
		}
		errs <- tx2.Commit()
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, tx1.Commit())
	require.NoError(t, <-errs)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM agents").Scan(&count))
	assert.Equal(t, 2, count)
}
