package validation

import "amsportal/internal/models"

// ValidStatuses mirrors the CHECK constraint on applications.status.
var ValidStatuses = func() []string {
	out := make([]string, len(models.Statuses))
	for i, s := range models.Statuses {
		out[i] = string(s)
	}
	return out
}()
