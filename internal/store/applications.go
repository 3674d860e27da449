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

// MsgApplicationNotFound is returned when an app_id matches nothing.
const MsgApplicationNotFound = "Application not found."

// NewApplication is the input to CreateApplication.
type NewApplication struct {
	AgentID       int
	ApplicantName string
	AppType       string
	AppNumber     string
	Cost          decimal.Decimal
	ReceivedDate  string
	Remarks       string
	Advance       decimal.Decimal
}

func (in *NewApplication) validate(appTypes []string) error {
	in.ApplicantName = strings.TrimSpace(in.ApplicantName)
	in.AppNumber = strings.TrimSpace(in.AppNumber)

	ve := &validation.ValidationErrors{}
	validation.ValidatePositiveInt(ve, "agent_id", in.AgentID)
	validation.RequireField(ve, "applicant_name", in.ApplicantName)
	validation.ValidateMaxLength(ve, "applicant_name", in.ApplicantName, validation.MaxNameLength)
	validation.RequireField(ve, "app_type", in.AppType)
	if len(appTypes) > 0 {
		validation.ValidateEnum(ve, "app_type", in.AppType, appTypes)
	}
	validation.ValidateMaxLength(ve, "app_number", in.AppNumber, validation.MaxNameLength)
	validation.ValidateNonNegativeDecimal(ve, "cost", in.Cost)
	validation.ValidateMaxAmount(ve, "cost", in.Cost)
	validation.ValidateCents(ve, "cost", in.Cost)
	validation.RequireField(ve, "received_date", in.ReceivedDate)
	validation.ValidateDate(ve, "received_date", in.ReceivedDate)
	validation.ValidateMaxLength(ve, "remarks", in.Remarks, validation.MaxStringLength)
	validation.ValidateNonNegativeDecimal(ve, "advance_payment", in.Advance)
	validation.ValidateMaxAmount(ve, "advance_payment", in.Advance)
	validation.ValidateCents(ve, "advance_payment", in.Advance)
	if ve.HasErrors() {
		return apperr.Validation(ve.Error())
	}
	return nil
}

// CreateApplication inserts a Pending application with its creation log and,
// when Advance is positive, the advance payment and its log. Nothing is kept
// if any step fails.
func (s *Store) CreateApplication(ctx context.Context, in NewApplication) (int, error) {
	if err := in.validate(s.AppTypes); err != nil {
		return 0, err
	}

	var appID int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := agentExists(ctx, tx, in.AgentID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO applications
			(agent_id, applicant_name, app_type, app_number, cost, status, received_date, remarks)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			in.AgentID, in.ApplicantName, in.AppType, in.AppNumber, in.Cost, models.StatusPending, in.ReceivedDate, in.Remarks)
		if err != nil {
			return apperr.Database(fmt.Errorf("insert application: %w", err))
		}
		id, err := res.LastInsertId()
		if err != nil {
			return apperr.Database(fmt.Errorf("application id: %w", err))
		}
		appID = int(id)

		logDate := in.ReceivedDate + " " + s.clock()
		if err := s.appendLog(ctx, tx, appID, models.LogCreated, "Application created.", logDate); err != nil {
			return err
		}
		if !in.Advance.IsPositive() {
			return nil
		}
		if _, err := insertPayment(ctx, tx, in.AgentID, appID, in.Advance, "Advance payment on creation", in.ReceivedDate); err != nil {
			return err
		}
		desc := fmt.Sprintf("Advance Payment of %s recorded on application creation.", s.FormatMoney(in.Advance))
		return s.appendLog(ctx, tx, appID, models.LogPayment, desc, logDate)
	})
	if err != nil {
		return 0, err
	}
	return appID, nil
}

// ApplicationUpdate is the input to UpdateApplication.
type ApplicationUpdate struct {
	AppID         int
	Status        models.Status
	AppNumber     string
	Remarks       string
	CompletedDate string
}

// ResolveCompletedDate picks the stored completed_date: a supplied date wins,
// Completed without one defaults to today, anything else clears it.
func ResolveCompletedDate(status models.Status, supplied, today string) *string {
	switch {
	case supplied != "":
		return &supplied
	case status == models.StatusCompleted:
		return &today
	default:
		return nil
	}
}

// UpdateApplication changes status, app number, remarks and completed date,
// and appends one update log describing the change.
func (s *Store) UpdateApplication(ctx context.Context, in ApplicationUpdate) error {
	in.AppNumber = strings.TrimSpace(in.AppNumber)
	in.CompletedDate = strings.TrimSpace(in.CompletedDate)

	ve := &validation.ValidationErrors{}
	validation.ValidatePositiveInt(ve, "app_id", in.AppID)
	if _, err := models.ParseStatus(string(in.Status)); err != nil {
		ve.Add("status", "must be one of: "+strings.Join(validation.ValidStatuses, ", "))
	}
	validation.ValidateMaxLength(ve, "app_number", in.AppNumber, validation.MaxNameLength)
	validation.ValidateMaxLength(ve, "remarks", in.Remarks, validation.MaxStringLength)
	validation.ValidateDate(ve, "completed_date", in.CompletedDate)
	if ve.HasErrors() {
		return apperr.Validation(ve.Error())
	}

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		var prevNumber string
		err := tx.QueryRowContext(ctx, "SELECT app_number FROM applications WHERE app_id = ?", in.AppID).Scan(&prevNumber)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.Validation(MsgApplicationNotFound)
		}
		if err != nil {
			return apperr.Database(fmt.Errorf("look up application: %w", err))
		}

		completed := ResolveCompletedDate(in.Status, in.CompletedDate, s.Today())
		if _, err := tx.ExecContext(ctx, `UPDATE applications
			SET status = ?, app_number = ?, remarks = ?, completed_date = ?
			WHERE app_id = ?`,
			in.Status, in.AppNumber, in.Remarks, completed, in.AppID); err != nil {
			return apperr.Database(fmt.Errorf("update application: %w", err))
		}

		desc := "Application details updated. Status set to: " + string(in.Status)
		switch {
		case in.AppNumber == prevNumber:
		case in.AppNumber == "":
			desc += ". App No. cleared"
		default:
			desc += ". App No. updated to: " + in.AppNumber
		}
		return s.appendLog(ctx, tx, in.AppID, models.LogUpdate, desc, s.stamp())
	})
}

// DeleteApplication removes an application with all of its payments and logs.
func (s *Store) DeleteApplication(ctx context.Context, appID int) error {
	if appID <= 0 {
		return apperr.Validation(MsgApplicationNotFound)
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := applicationExists(ctx, tx, appID); err != nil {
			return err
		}
		for _, q := range []string{
			"DELETE FROM payments WHERE app_id = ?",
			"DELETE FROM application_logs WHERE app_id = ?",
			"DELETE FROM applications WHERE app_id = ?",
		} {
			if _, err := tx.ExecContext(ctx, q, appID); err != nil {
				return apperr.Database(fmt.Errorf("purge application %d: %w", appID, err))
			}
		}
		return nil
	})
}

const applicationColumns = `a.app_id, a.agent_id, ag.name, a.applicant_name, a.app_type, a.app_number,
	a.cost, a.status, a.received_date, a.completed_date, a.remarks,
	a.cost - COALESCE(p.total_paid, 0)`

const applicationFrom = `FROM applications a
	JOIN agents ag ON ag.agent_id = a.agent_id
	LEFT JOIN (SELECT app_id, SUM(amount) AS total_paid FROM payments GROUP BY app_id) p ON p.app_id = a.app_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (models.Application, error) {
	var a models.Application
	var completed sql.NullString
	err := row.Scan(&a.ID, &a.AgentID, &a.AgentName, &a.ApplicantName, &a.AppType, &a.AppNumber,
		&a.Cost, &a.Status, &a.ReceivedDate, &completed, &a.Remarks, &a.Due)
	if err != nil {
		return a, err
	}
	a.Cost = money(a.Cost)
	a.Due = money(a.Due)
	a.CompletedDate = nullableString(completed)
	return a, nil
}

// ListApplications returns applications matching f, newest received first,
// each with its outstanding due.
func (s *Store) ListApplications(ctx context.Context, f models.ApplicationFilter) ([]models.Application, error) {
	var where []string
	var args []any

	if search := strings.TrimSpace(f.Search); search != "" {
		where = append(where, "(a.applicant_name LIKE ? OR a.app_number LIKE ?)")
		like := "%" + search + "%"
		args = append(args, like, like)
	}
	if f.AgentID > 0 {
		where = append(where, "a.agent_id = ?")
		args = append(args, f.AgentID)
	}
	switch f.Status {
	case "":
	case models.StatusFilterActive:
		where = append(where, "a.status IN (?, ?)")
		args = append(args, models.StatusPending, models.StatusProcessing)
	default:
		st, err := models.ParseStatus(f.Status)
		if err != nil {
			return nil, apperr.Validationf("Unknown status filter %q.", f.Status)
		}
		where = append(where, "a.status = ?")
		args = append(args, st)
	}

	query := "SELECT " + applicationColumns + " " + applicationFrom
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.received_date DESC, a.app_id DESC"

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Database(fmt.Errorf("list applications: %w", err))
	}
	defer rows.Close()

	apps := []models.Application{}
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, apperr.Database(err)
		}
		apps = append(apps, a)
	}
	return apps, apperr.Database(rows.Err())
}

// GetApplicationDetail returns the application with its paid total, balance
// and logs, newest first.
func (s *Store) GetApplicationDetail(ctx context.Context, appID int) (*models.ApplicationDetail, error) {
	row := s.DB.QueryRowContext(ctx, "SELECT "+applicationColumns+" "+applicationFrom+" WHERE a.app_id = ?", appID)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Validation(MsgApplicationNotFound)
	}
	if err != nil {
		return nil, apperr.Database(fmt.Errorf("get application: %w", err))
	}

	d := &models.ApplicationDetail{Application: app}
	d.Balance = app.Due
	d.TotalPaid = app.Cost.Sub(app.Due)

	if d.Logs, err = s.ListLogs(ctx, appID); err != nil {
		return nil, err
	}
	return d, nil
}

func applicationExists(ctx context.Context, q queryer, appID int) error {
	var id int
	err := q.QueryRowContext(ctx, "SELECT app_id FROM applications WHERE app_id = ?", appID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Validation(MsgApplicationNotFound)
	}
	if err != nil {
		return apperr.Database(fmt.Errorf("look up application: %w", err))
	}
	return nil
}
