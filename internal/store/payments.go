package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"amsportal/internal/apperr"
	"amsportal/internal/models"
	"amsportal/internal/validation"
)

// NewPayment is the input to RecordPayment. AgentID zero means the
// application's own agent.
type NewPayment struct {
	AppID       int
	AgentID     int
	Amount      decimal.Decimal
	PaymentDate string
	Notes       string
}

// RecordPayment inserts a payment and its payment log together.
func (s *Store) RecordPayment(ctx context.Context, in NewPayment) (int, error) {
	in.Notes = strings.TrimSpace(in.Notes)

	ve := &validation.ValidationErrors{}
	validation.ValidatePositiveInt(ve, "app_id", in.AppID)
	validation.ValidatePositiveDecimal(ve, "amount", in.Amount)
	validation.ValidateMaxAmount(ve, "amount", in.Amount)
	validation.ValidateCents(ve, "amount", in.Amount)
	validation.RequireField(ve, "payment_date", in.PaymentDate)
	validation.ValidateDate(ve, "payment_date", in.PaymentDate)
	validation.ValidateMaxLength(ve, "notes", in.Notes, validation.MaxStringLength)
	if ve.HasErrors() {
		return 0, apperr.Validation(ve.Error())
	}

	var paymentID int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var appAgent int
		err := tx.QueryRowContext(ctx, "SELECT agent_id FROM applications WHERE app_id = ?", in.AppID).Scan(&appAgent)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.Validation(MsgApplicationNotFound)
		}
		if err != nil {
			return apperr.Database(fmt.Errorf("look up application: %w", err))
		}
		agentID := appAgent
		if in.AgentID > 0 && in.AgentID != appAgent {
			if err := agentExists(ctx, tx, in.AgentID); err != nil {
				return err
			}
			agentID = in.AgentID
		}

		if paymentID, err = insertPayment(ctx, tx, agentID, in.AppID, in.Amount, in.Notes, in.PaymentDate); err != nil {
			return err
		}
		desc := fmt.Sprintf("Payment of %s recorded.", s.FormatMoney(in.Amount))
		if in.Notes != "" {
			desc += " Notes: " + in.Notes
		}
		return s.appendLog(ctx, tx, in.AppID, models.LogPayment, desc, in.PaymentDate+" "+s.clock())
	})
	if err != nil {
		return 0, err
	}
	return paymentID, nil
}

// ListPayments returns an application's payments in date order.
func (s *Store) ListPayments(ctx context.Context, appID int) ([]models.Payment, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, agent_id, app_id, amount, notes, payment_date
		FROM payments WHERE app_id = ? ORDER BY payment_date, id`, appID)
	if err != nil {
		return nil, apperr.Database(fmt.Errorf("list payments: %w", err))
	}
	defer rows.Close()

	payments := []models.Payment{}
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.AgentID, &p.AppID, &p.Amount, &p.Notes, &p.PaymentDate); err != nil {
			return nil, apperr.Database(err)
		}
		p.Amount = money(p.Amount)
		payments = append(payments, p)
	}
	return payments, apperr.Database(rows.Err())
}

func insertPayment(ctx context.Context, tx *sql.Tx, agentID, appID int, amount decimal.Decimal, notes, date string) (int, error) {
	res, err := tx.ExecContext(ctx, "INSERT INTO payments (agent_id, app_id, amount, notes, payment_date) VALUES (?, ?, ?, ?, ?)",
		agentID, appID, amount, notes, date)
	if err != nil {
		return 0, apperr.Database(fmt.Errorf("insert payment: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Database(fmt.Errorf("payment id: %w", err))
	}
	return int(id), nil
}
