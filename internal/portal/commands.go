package portal

import (
	"context"

	"amsportal/internal/apperr"
	"amsportal/internal/auth"
	"amsportal/internal/events"
	"amsportal/internal/store"
)

// Success messages shown after each command.
const (
	MsgAgentAdded          = "New agent added successfully!"
	MsgApplicationCreated  = "New application created!"
	MsgApplicationUpdated  = "Application details updated."
	MsgPaymentRecorded     = "Payment recorded successfully."
	MsgLogAdded            = "Work log added."
	MsgSettingsUpdated     = "Your settings have been updated."
	MsgApplicationPurged   = "Application and all related data purged."
	MsgApplicationNotPurge = "Failed to purge application data."
	MsgAgentDeleted        = "Agent deleted. Applications reassigned."
)

// Command is a decoded mutating request. The set of commands is closed: each
// variant below implements run, and the portal dispatches only through it.
type Command interface {
	// Name is the form_type or action that produced the command.
	Name() string
	run(ctx context.Context, st *store.Store, s *auth.Session) (outcome, error)
	// failTarget is where the browser goes when run fails.
	failTarget() string
}

// outcome describes a successful command.
type outcome struct {
	message string
	target  string
	event   *events.Event
}

func changed(resource, action string, id int) *events.Event {
	e := events.Change(resource, action, id)
	return &e
}

// AddAgent creates an agent.
type AddAgent struct {
	AgentName       string
	Phone           string
	RedirectSection string
}

func (AddAgent) Name() string { return "add_agent" }

func (c AddAgent) failTarget() string { return SectionURL(c.RedirectSection) }

func (c AddAgent) run(ctx context.Context, st *store.Store, _ *auth.Session) (outcome, error) {
	id, err := st.CreateAgent(ctx, c.AgentName, c.Phone)
	if err != nil {
		return outcome{}, err
	}
	return outcome{
		message: MsgAgentAdded,
		target:  SectionURL(c.RedirectSection),
		event:   changed(events.ResourceAgent, events.ActionCreate, id),
	}, nil
}

// AddApplication creates an application, with an optional advance payment.
type AddApplication struct {
	store.NewApplication
	RedirectSection string
}

func (AddApplication) Name() string { return "add_application" }

func (c AddApplication) failTarget() string { return SectionURL(c.RedirectSection) }

func (c AddApplication) run(ctx context.Context, st *store.Store, _ *auth.Session) (outcome, error) {
	id, err := st.CreateApplication(ctx, c.NewApplication)
	if err != nil {
		return outcome{}, err
	}
	return outcome{
		message: MsgApplicationCreated,
		target:  DetailURL(id),
		event:   changed(events.ResourceApplication, events.ActionCreate, id),
	}, nil
}

// UpdateApplication changes an application's status and details.
type UpdateApplication struct {
	store.ApplicationUpdate
}

func (UpdateApplication) Name() string { return "update_application" }

func (c UpdateApplication) failTarget() string { return DetailURL(c.AppID) }

func (c UpdateApplication) run(ctx context.Context, st *store.Store, _ *auth.Session) (outcome, error) {
	if err := st.UpdateApplication(ctx, c.ApplicationUpdate); err != nil {
		return outcome{}, err
	}
	return outcome{
		message: MsgApplicationUpdated,
		target:  DetailURL(c.AppID),
		event:   changed(events.ResourceApplication, events.ActionUpdate, c.AppID),
	}, nil
}

// AddPayment records a payment against an application.
type AddPayment struct {
	store.NewPayment
}

func (AddPayment) Name() string { return "add_payment" }

func (c AddPayment) failTarget() string { return DetailURL(c.AppID) }

func (c AddPayment) run(ctx context.Context, st *store.Store, _ *auth.Session) (outcome, error) {
	if _, err := st.RecordPayment(ctx, c.NewPayment); err != nil {
		return outcome{}, err
	}
	return outcome{
		message: MsgPaymentRecorded,
		target:  DetailURL(c.AppID),
		event:   changed(events.ResourcePayment, events.ActionCreate, c.AppID),
	}, nil
}

// AddLog appends a work log entry.
type AddLog struct {
	store.NewLog
}

func (AddLog) Name() string { return "add_log" }

func (c AddLog) failTarget() string { return DetailURL(c.AppID) }

func (c AddLog) run(ctx context.Context, st *store.Store, _ *auth.Session) (outcome, error) {
	if err := st.AddLog(ctx, c.NewLog); err != nil {
		return outcome{}, err
	}
	return outcome{
		message: MsgLogAdded,
		target:  DetailURL(c.AppID),
		event:   changed(events.ResourceLog, events.ActionCreate, c.AppID),
	}, nil
}

// UpdateSettings changes the signed-in admin's username and/or password.
type UpdateSettings struct {
	CurrentPassword string
	NewUsername     string
	NewPassword     string
	ConfirmPassword string
}

func (UpdateSettings) Name() string { return "update_settings" }

func (UpdateSettings) failTarget() string { return SectionURL(SectionSettings) }

func (c UpdateSettings) run(ctx context.Context, st *store.Store, s *auth.Session) (outcome, error) {
	name, err := st.UpdateAccountSettings(ctx, store.AccountUpdate{
		CurrentUsername: s.Username,
		CurrentPassword: c.CurrentPassword,
		NewUsername:     c.NewUsername,
		NewPassword:     c.NewPassword,
		ConfirmPassword: c.ConfirmPassword,
	})
	if err != nil {
		return outcome{}, err
	}
	s.Username = name
	return outcome{message: MsgSettingsUpdated, target: SectionURL(SectionSettings)}, nil
}

// DeleteApplication purges an application with its payments and logs.
type DeleteApplication struct {
	AppID int
}

func (DeleteApplication) Name() string { return "delete_application" }

func (DeleteApplication) failTarget() string { return SectionURL(SectionApplications) }

func (c DeleteApplication) run(ctx context.Context, st *store.Store, _ *auth.Session) (outcome, error) {
	if err := st.DeleteApplication(ctx, c.AppID); err != nil {
		if apperr.KindOf(err) == apperr.KindDatabase {
			return outcome{}, apperr.DatabaseMsg(MsgApplicationNotPurge, err)
		}
		return outcome{}, err
	}
	return outcome{
		message: MsgApplicationPurged,
		target:  SectionURL(SectionApplications),
		event:   changed(events.ResourceApplication, events.ActionDelete, c.AppID),
	}, nil
}

// DeleteAgent removes an agent after moving its applications to Direct
// Applicant.
type DeleteAgent struct {
	AgentID int
}

func (DeleteAgent) Name() string { return "delete_agent" }

func (DeleteAgent) failTarget() string { return SectionURL(SectionAgents) }

func (c DeleteAgent) run(ctx context.Context, st *store.Store, _ *auth.Session) (outcome, error) {
	if _, err := st.DeleteAgent(ctx, c.AgentID); err != nil {
		return outcome{}, err
	}
	return outcome{
		message: MsgAgentDeleted,
		target:  SectionURL(SectionAgents),
		event:   changed(events.ResourceAgent, events.ActionDelete, c.AgentID),
	}, nil
}
