package store

import (
	"context"
	"fmt"
	"time"

	"amsportal/internal/apperr"
	"amsportal/internal/models"
	"amsportal/internal/validation"
)

// Dashboard windows, in days back from today.
const (
	RevenueWindowDays  = 30
	TimelineWindowDays = 90
	StalePendingDays   = 7
)

func (s *Store) daysAgo(n int) string {
	return s.now().AddDate(0, 0, -n).Format(validation.DateLayout)
}

// Dashboard computes the dashboard figures as of the store clock.
func (s *Store) Dashboard(ctx context.Context) (*models.DashboardStats, error) {
	st := &models.DashboardStats{}

	err := s.DB.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM agents),
		(SELECT COUNT(*) FROM applications WHERE status IN (?, ?)),
		(SELECT COALESCE(SUM(amount), 0) FROM payments WHERE payment_date >= ?),
		(SELECT COALESCE(SUM(cost), 0) FROM applications) - (SELECT COALESCE(SUM(amount), 0) FROM payments)`,
		models.StatusPending, models.StatusProcessing, s.daysAgo(RevenueWindowDays)).
		Scan(&st.TotalAgents, &st.PendingApps, &st.Revenue30Days, &st.TotalDues)
	if err != nil {
		return nil, apperr.Database(fmt.Errorf("dashboard totals: %w", err))
	}
	st.Revenue30Days = money(st.Revenue30Days)
	st.TotalDues = money(st.TotalDues)

	if st.TypeCounts, err = s.typeCounts(ctx); err != nil {
		return nil, err
	}
	if st.Timeline, err = s.timeline(ctx); err != nil {
		return nil, err
	}
	if st.DueAlerts, err = s.dueAlerts(ctx); err != nil {
		return nil, err
	}
	if st.StalePending, err = s.stalePending(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) typeCounts(ctx context.Context) ([]models.TypeCount, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT app_type, COUNT(*) FROM applications GROUP BY app_type ORDER BY app_type")
	if err != nil {
		return nil, apperr.Database(fmt.Errorf("type counts: %w", err))
	}
	defer rows.Close()

	out := []models.TypeCount{}
	for rows.Next() {
		var tc models.TypeCount
		if err := rows.Scan(&tc.AppType, &tc.Count); err != nil {
			return nil, apperr.Database(err)
		}
		out = append(out, tc)
	}
	return out, apperr.Database(rows.Err())
}

func (s *Store) timeline(ctx context.Context) ([]models.DailyCount, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT received_date, COUNT(*) FROM applications
		WHERE received_date >= ? GROUP BY received_date ORDER BY received_date`, s.daysAgo(TimelineWindowDays))
	if err != nil {
		return nil, apperr.Database(fmt.Errorf("timeline: %w", err))
	}
	defer rows.Close()

	out := []models.DailyCount{}
	for rows.Next() {
		var dc models.DailyCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, apperr.Database(err)
		}
		out = append(out, dc)
	}
	return out, apperr.Database(rows.Err())
}

func (s *Store) dueAlerts(ctx context.Context) ([]models.DueAlert, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT a.app_id, a.applicant_name, a.cost - COALESCE(p.total_paid, 0) AS due
		FROM applications a
		LEFT JOIN (SELECT app_id, SUM(amount) AS total_paid FROM payments GROUP BY app_id) p ON p.app_id = a.app_id
		WHERE a.cost - COALESCE(p.total_paid, 0) > 0
		ORDER BY due DESC, a.app_id`)
	if err != nil {
		return nil, apperr.Database(fmt.Errorf("due alerts: %w", err))
	}
	defer rows.Close()

	out := []models.DueAlert{}
	for rows.Next() {
		var da models.DueAlert
		if err := rows.Scan(&da.AppID, &da.ApplicantName, &da.Due); err != nil {
			return nil, apperr.Database(err)
		}
		da.Due = money(da.Due)
		if !da.Due.IsPositive() {
			continue
		}
		out = append(out, da)
	}
	return out, apperr.Database(rows.Err())
}

func (s *Store) stalePending(ctx context.Context) ([]models.PendingAlert, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT app_id, applicant_name, received_date FROM applications
		WHERE status = ? AND received_date < ?
		ORDER BY received_date, app_id`, models.StatusPending, s.daysAgo(StalePendingDays))
	if err != nil {
		return nil, apperr.Database(fmt.Errorf("stale pending: %w", err))
	}
	defer rows.Close()

	today, _ := time.Parse(validation.DateLayout, s.Today())
	out := []models.PendingAlert{}
	for rows.Next() {
		var pa models.PendingAlert
		var received string
		if err := rows.Scan(&pa.AppID, &pa.ApplicantName, &received); err != nil {
			return nil, apperr.Database(err)
		}
		if d, err := time.Parse(validation.DateLayout, received); err == nil {
			pa.AgeDays = int(today.Sub(d).Hours() / 24)
		}
		out = append(out, pa)
	}
	return out, apperr.Database(rows.Err())
}

// AgentRollups returns every agent with application counts, total fees and
// outstanding dues, ordered by name.
func (s *Store) AgentRollups(ctx context.Context) ([]models.AgentRollup, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT ag.agent_id, ag.name, ag.phone,
			COUNT(a.app_id),
			COALESCE(SUM(CASE WHEN a.status IN (?, ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(a.cost), 0),
			COALESCE(SUM(a.cost), 0) - COALESCE(SUM(p.total_paid), 0)
		FROM agents ag
		LEFT JOIN applications a ON a.agent_id = ag.agent_id
		LEFT JOIN (SELECT app_id, SUM(amount) AS total_paid FROM payments GROUP BY app_id) p ON p.app_id = a.app_id
		GROUP BY ag.agent_id, ag.name, ag.phone
		ORDER BY ag.name, ag.agent_id`, models.StatusPending, models.StatusProcessing)
	if err != nil {
		return nil, apperr.Database(fmt.Errorf("agent rollups: %w", err))
	}
	defer rows.Close()

	out := []models.AgentRollup{}
	for rows.Next() {
		var r models.AgentRollup
		if err := rows.Scan(&r.ID, &r.Name, &r.Phone, &r.TotalApps, &r.PendingApps, &r.TotalValue, &r.Dues); err != nil {
			return nil, apperr.Database(err)
		}
		r.TotalValue = money(r.TotalValue)
		r.Dues = money(r.Dues)
		out = append(out, r)
	}
	return out, apperr.Database(rows.Err())
}
