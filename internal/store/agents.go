package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"amsportal/internal/apperr"
	"amsportal/internal/models"
	"amsportal/internal/validation"
)

// Agent flash and error texts.
const (
	MsgAgentNotFound       = "Agent not found."
	MsgCannotDeleteDefault = `Cannot delete the default "Direct Applicant" agent.`
)

// CreateAgent inserts an agent and returns its id.
func (s *Store) CreateAgent(ctx context.Context, name, phone string) (int, error) {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "name", name)
	validation.ValidateMaxLength(ve, "name", name, validation.MaxNameLength)
	validation.ValidateMaxLength(ve, "phone", phone, validation.MaxNameLength)
	if ve.HasErrors() {
		return 0, apperr.Validation(ve.Error())
	}

	res, err := s.DB.ExecContext(ctx, "INSERT INTO agents (name, phone) VALUES (?, ?)", name, phone)
	if err != nil {
		return 0, apperr.Database(fmt.Errorf("insert agent: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Database(fmt.Errorf("agent id: %w", err))
	}
	return int(id), nil
}

// DeleteAgent moves the agent's applications to Direct Applicant and then
// removes the agent. It returns how many applications were reassigned.
func (s *Store) DeleteAgent(ctx context.Context, agentID int) (int64, error) {
	if agentID == models.DirectApplicantID {
		return 0, apperr.Validation(MsgCannotDeleteDefault)
	}
	if agentID <= 0 {
		return 0, apperr.Validation(MsgAgentNotFound)
	}

	var moved int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := agentExists(ctx, tx, agentID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "UPDATE applications SET agent_id = ? WHERE agent_id = ?", models.DirectApplicantID, agentID)
		if err != nil {
			return apperr.Database(fmt.Errorf("reassign applications: %w", err))
		}
		if moved, err = res.RowsAffected(); err != nil {
			return apperr.Database(err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM agents WHERE agent_id = ?", agentID); err != nil {
			return apperr.Database(fmt.Errorf("delete agent: %w", err))
		}
		return nil
	})
	return moved, err
}

// ListAgents returns all agents ordered by name.
func (s *Store) ListAgents(ctx context.Context) ([]models.Agent, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT agent_id, name, phone FROM agents ORDER BY name, agent_id")
	if err != nil {
		return nil, apperr.Database(fmt.Errorf("list agents: %w", err))
	}
	defer rows.Close()

	agents := []models.Agent{}
	for rows.Next() {
		var a models.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Phone); err != nil {
			return nil, apperr.Database(err)
		}
		agents = append(agents, a)
	}
	return agents, apperr.Database(rows.Err())
}

func agentExists(ctx context.Context, q queryer, agentID int) error {
	var id int
	err := q.QueryRowContext(ctx, "SELECT agent_id FROM agents WHERE agent_id = ?", agentID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Validation(MsgAgentNotFound)
	}
	if err != nil {
		return apperr.Database(fmt.Errorf("look up agent: %w", err))
	}
	return nil
}
