package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DirectApplicantID is the sentinel agent that owns applications filed
// without a referring agent. It is seeded at startup and never deleted.
const DirectApplicantID = 1

// DirectApplicantName is the display name of the sentinel agent.
const DirectApplicantName = "Direct Applicant"

// Status is the workflow state of an application.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusRejected   Status = "Rejected"
)

// Statuses lists every status in display order. Any status may follow any other.
var Statuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusRejected}

// ParseStatus converts a form value into a Status.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// LogKind discriminates application log rows.
type LogKind string

const (
	LogCreated LogKind = "created"
	LogUpdate  LogKind = "update"
	LogPayment LogKind = "payment"
	LogNote    LogKind = "note"
)

type Agent struct {
	ID    int    `json:"agent_id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type Application struct {
	ID            int             `json:"app_id"`
	AgentID       int             `json:"agent_id"`
	AgentName     string          `json:"agent_name,omitempty"`
	ApplicantName string          `json:"applicant_name"`
	AppType       string          `json:"app_type"`
	AppNumber     string          `json:"app_number"`
	Cost          decimal.Decimal `json:"cost"`
	Status        Status          `json:"status"`
	ReceivedDate  string          `json:"received_date"`
	CompletedDate *string         `json:"completed_date"`
	Remarks       string          `json:"remarks"`
	Due           decimal.Decimal `json:"due"`
}

type Payment struct {
	ID          int             `json:"id"`
	AgentID     int             `json:"agent_id"`
	AppID       int             `json:"app_id"`
	Amount      decimal.Decimal `json:"amount"`
	Notes       string          `json:"notes"`
	PaymentDate string          `json:"payment_date"`
}

type LogEntry struct {
	ID          int     `json:"id"`
	AppID       int     `json:"app_id"`
	Kind        LogKind `json:"kind"`
	Description string  `json:"description"`
	UpdateDate  string  `json:"update_date"`
	CreatedAt   string  `json:"created_at"`
	// IsPayment is derived from Kind when the row is read.
	IsPayment bool `json:"is_payment"`
}

// ApplicationDetail is an application with its payment totals and history.
type ApplicationDetail struct {
	Application
	TotalPaid decimal.Decimal `json:"total_paid"`
	Balance   decimal.Decimal `json:"balance_due"`
	Logs      []LogEntry      `json:"logs"`
}

// ApplicationFilter narrows the application list.
type ApplicationFilter struct {
	Search  string
	AgentID int
	// Status is "active" for Pending/Processing, "" for all, or a Status value.
	Status string
}

// StatusFilterActive selects Pending and Processing applications.
const StatusFilterActive = "active"

// Flash types.
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

// Flash is a one-shot message shown after a redirect.
type Flash struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Empty reports whether no message is set.
func (f Flash) Empty() bool { return f.Text == "" }
