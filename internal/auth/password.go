package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"amsportal/internal/apperr"
)

// MinPasswordLength is the shortest new admin password accepted.
const MinPasswordLength = 8

// MsgInvalidCredentials is returned for both unknown users and wrong
// passwords so the login form cannot be used to enumerate accounts.
const MsgInvalidCredentials = "Invalid username or password."

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePasswordStrength checks a new password is long enough.
func ValidatePasswordStrength(password string) error {
	if len(password) < MinPasswordLength {
		return apperr.Validationf("New password must be at least %d characters.", MinPasswordLength)
	}
	return nil
}

// Authenticate verifies username and password against admin_users.
func Authenticate(ctx context.Context, db *sql.DB, username, password string) error {
	var hash string
	err := db.QueryRowContext(ctx, "SELECT password_hash FROM admin_users WHERE username = ?", username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		// Unknown users take as long as wrong passwords.
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return apperr.Authentication(MsgInvalidCredentials)
	}
	if err != nil {
		return apperr.Database(fmt.Errorf("look up admin: %w", err))
	}
	if !CheckPassword(hash, password) {
		return apperr.Authentication(MsgInvalidCredentials)
	}
	return nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
