package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"amsportal/internal/apperr"
	"amsportal/internal/auth"
	"amsportal/internal/validation"
)

// Account settings messages.
const (
	MsgWrongCurrentPassword = "Your current password is not correct."
	MsgUsernameTaken        = "That username is already taken."
	MsgPasswordMismatch     = "New passwords do not match."
	MsgNoChanges            = "No changes were made."
)

// AccountUpdate is the input to UpdateAccountSettings. Empty NewUsername or
// NewPassword leaves that field alone.
type AccountUpdate struct {
	CurrentUsername string
	CurrentPassword string
	NewUsername     string
	NewPassword     string
	ConfirmPassword string
}

// UpdateAccountSettings changes the admin's username and/or password after
// re-verifying the current password. It returns the username now in effect.
// Sessions held under the old name follow a rename.
func (s *Store) UpdateAccountSettings(ctx context.Context, in AccountUpdate) (string, error) {
	newName := strings.TrimSpace(in.NewUsername)
	if in.CurrentPassword == "" {
		return in.CurrentUsername, apperr.Authentication(MsgWrongCurrentPassword)
	}
	if len(newName) > validation.MaxNameLength {
		return in.CurrentUsername, apperr.Validation("New username is too long.")
	}

	result := in.CurrentUsername
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var id int
		var hash string
		err := tx.QueryRowContext(ctx, "SELECT id, password_hash FROM admin_users WHERE username = ?", in.CurrentUsername).Scan(&id, &hash)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.Authentication(MsgWrongCurrentPassword)
		}
		if err != nil {
			return apperr.Database(fmt.Errorf("look up admin: %w", err))
		}
		if !auth.CheckPassword(hash, in.CurrentPassword) {
			return apperr.Authentication(MsgWrongCurrentPassword)
		}

		var sets []string
		var args []any
		rename := newName != "" && newName != in.CurrentUsername
		if rename {
			var taken int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM admin_users WHERE username = ? AND id <> ?", newName, id).Scan(&taken); err != nil {
				return apperr.Database(fmt.Errorf("check username: %w", err))
			}
			if taken > 0 {
				return apperr.Validation(MsgUsernameTaken)
			}
			sets = append(sets, "username = ?")
			args = append(args, newName)
		}
		if in.NewPassword != "" {
			if in.NewPassword != in.ConfirmPassword {
				return apperr.Validation(MsgPasswordMismatch)
			}
			if err := auth.ValidatePasswordStrength(in.NewPassword); err != nil {
				return err
			}
			newHash, err := auth.HashPassword(in.NewPassword)
			if err != nil {
				return apperr.Database(err)
			}
			sets = append(sets, "password_hash = ?")
			args = append(args, newHash)
		}
		if len(sets) == 0 {
			return apperr.NoChange(MsgNoChanges)
		}

		args = append(args, id)
		if _, err := tx.ExecContext(ctx, "UPDATE admin_users SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
			return apperr.Database(fmt.Errorf("update admin: %w", err))
		}
		if rename {
			if _, err := tx.ExecContext(ctx, "UPDATE sessions SET username = ? WHERE username = ?", newName, in.CurrentUsername); err != nil {
				return apperr.Database(fmt.Errorf("rename sessions: %w", err))
			}
			result = newName
		}
		return nil
	})
	if err != nil {
		return in.CurrentUsername, err
	}
	return result, nil
}
