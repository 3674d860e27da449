package models

import "github.com/shopspring/decimal"

// DashboardStats are the headline figures on the dashboard.
type DashboardStats struct {
	TotalAgents   int             `json:"total_agents"`
	PendingApps   int             `json:"pending_apps"`
	Revenue30Days decimal.Decimal `json:"revenue_30_days"`
	TotalDues     decimal.Decimal `json:"total_dues"`
	TypeCounts    []TypeCount     `json:"app_type_counts"`
	Timeline      []DailyCount    `json:"timeline"`
	DueAlerts     []DueAlert      `json:"due_alerts"`
	StalePending  []PendingAlert  `json:"stale_pending"`
}

type TypeCount struct {
	AppType string `json:"app_type"`
	Count   int    `json:"count"`
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// DueAlert is an application with money still owed.
type DueAlert struct {
	AppID         int             `json:"app_id"`
	ApplicantName string          `json:"applicant_name"`
	Due           decimal.Decimal `json:"due"`
}

// PendingAlert is a Pending application older than the alert window.
type PendingAlert struct {
	AppID         int    `json:"app_id"`
	ApplicantName string `json:"applicant_name"`
	AgeDays       int    `json:"age_days"`
}

// AgentRollup summarises one agent's book of applications.
type AgentRollup struct {
	Agent
	TotalApps   int             `json:"total_apps"`
	PendingApps int             `json:"pending_apps"`
	TotalValue  decimal.Decimal `json:"total_value"`
	Dues        decimal.Decimal `json:"agent_due"`
}
