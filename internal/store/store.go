// Package store holds every read and write against the portal schema.
// Multi-statement mutations run inside WithTx so they either fully apply or
// leave the database untouched.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"amsportal/internal/apperr"
	"amsportal/internal/validation"
)

// Store is the portal's data access layer over a single connection pool.
type Store struct {
	DB       *sql.DB
	Loc      *time.Location
	Currency string
	AppTypes []string
	Now      func() time.Time
}

// New creates a Store using the wall clock.
func New(db *sql.DB, loc *time.Location, currency string, appTypes []string) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{DB: db, Loc: loc, Currency: currency, AppTypes: appTypes, Now: time.Now}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now().In(s.loc())
	}
	return time.Now().In(s.loc())
}

func (s *Store) loc() *time.Location {
	if s.Loc == nil {
		return time.UTC
	}
	return s.Loc
}

// Today returns the current date in the store's timezone.
func (s *Store) Today() string {
	return s.now().Format(validation.DateLayout)
}

func (s *Store) clock() string {
	return s.now().Format(validation.TimeLayout)
}

func (s *Store) stamp() string {
	return s.now().Format(validation.DateTimeLayout)
}

// FormatMoney renders an amount for log text, e.g. "₹1,200.00".
func (s *Store) FormatMoney(d decimal.Decimal) string {
	return s.Currency + humanize.FormatFloat("#,###.##", d.Round(2).InexactFloat64())
}

// WithTx runs fn in a transaction, committing when fn returns nil and rolling
// back on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Database(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return apperr.Database(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// money normalises a scanned SQLite numeric to cents precision.
func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
