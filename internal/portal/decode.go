package portal

import (
	"net/url"
	"strconv"
	"strings"

	"amsportal/internal/apperr"
	"amsportal/internal/models"
	"amsportal/internal/store"
	"amsportal/internal/validation"
)

// MsgUnknownCommand is flashed for an unrecognised form_type or action.
const MsgUnknownCommand = "Unknown request. Nothing was changed."

func formInt(ve *validation.ValidationErrors, form url.Values, field string) int {
	raw := strings.TrimSpace(form.Get(field))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		ve.Add(field, "must be a whole number")
		return 0
	}
	return n
}

// DecodeForm turns a POSTed form into a Command. For a known form_type the
// command is returned even when a field fails to parse, so the caller can
// still redirect to the right place.
func DecodeForm(form url.Values) (Command, error) {
	ve := &validation.ValidationErrors{}
	var cmd Command

	switch form.Get("form_type") {
	case "add_agent":
		cmd = AddAgent{
			AgentName:       form.Get("name"),
			Phone:           form.Get("phone"),
			RedirectSection: form.Get("redirect_section"),
		}

	case "add_application":
		agentID := formInt(ve, form, "agent_id")
		if agentID == 0 {
			agentID = models.DirectApplicantID
		}
		cmd = AddApplication{
			NewApplication: store.NewApplication{
				AgentID:       agentID,
				ApplicantName: form.Get("applicant_name"),
				AppType:       strings.TrimSpace(form.Get("app_type")),
				AppNumber:     form.Get("app_number"),
				Cost:          validation.ParseAmount(ve, "cost", form.Get("cost")),
				ReceivedDate:  strings.TrimSpace(form.Get("received_date")),
				Remarks:       form.Get("remarks"),
				Advance:       validation.ParseAmount(ve, "advance_payment", form.Get("advance_payment")),
			},
			RedirectSection: form.Get("redirect_section"),
		}

	case "update_application":
		appNumber := form.Get("app_number_update")
		if _, ok := form["app_number_update"]; !ok {
			appNumber = form.Get("app_number")
		}
		cmd = UpdateApplication{store.ApplicationUpdate{
			AppID:         formInt(ve, form, "app_id"),
			Status:        models.Status(strings.TrimSpace(form.Get("status"))),
			AppNumber:     appNumber,
			Remarks:       form.Get("remarks"),
			CompletedDate: form.Get("completed_date"),
		}}

	case "add_payment":
		cmd = AddPayment{store.NewPayment{
			AppID:       formInt(ve, form, "app_id"),
			AgentID:     formInt(ve, form, "agent_id"),
			Amount:      validation.ParseAmount(ve, "amount", form.Get("amount")),
			PaymentDate: strings.TrimSpace(form.Get("payment_date")),
			Notes:       form.Get("notes"),
		}}

	case "add_log":
		cmd = AddLog{store.NewLog{
			AppID:       formInt(ve, form, "app_id"),
			Description: form.Get("description"),
			UpdateDate:  strings.TrimSpace(form.Get("update_date")),
			UpdateTime:  form.Get("update_time"),
		}}

	case "update_settings":
		cmd = UpdateSettings{
			CurrentPassword: form.Get("current_password"),
			NewUsername:     form.Get("new_username"),
			NewPassword:     form.Get("new_password"),
			ConfirmPassword: form.Get("confirm_password"),
		}

	default:
		return nil, apperr.Validation(MsgUnknownCommand)
	}

	if ve.HasErrors() {
		return cmd, apperr.Validation(ve.Error())
	}
	return cmd, nil
}

// DecodeDelete turns a delete_* action link into a Command.
func DecodeDelete(action string, query url.Values) (Command, error) {
	ve := &validation.ValidationErrors{}
	id := formInt(ve, query, "id")
	if id <= 0 && !ve.HasErrors() {
		ve.Add("id", "is required")
	}

	var cmd Command
	switch action {
	case "delete_application":
		cmd = DeleteApplication{AppID: id}
	case "delete_agent":
		cmd = DeleteAgent{AgentID: id}
	default:
		return nil, apperr.Validation(MsgUnknownCommand)
	}
	if ve.HasErrors() {
		return cmd, apperr.Validation(ve.Error())
	}
	return cmd, nil
}
