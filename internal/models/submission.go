// internal/models/submission.go
package models

// EmailStatus values reported alongside an acknowledged submission.
const (
	EmailStatusSent   = "sent"
	EmailStatusFailed = "failed"
)

// FieldError pairs a field with its first failing message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// SubmissionResponse is the JSON body of every POST /api/<form> response.
type SubmissionResponse struct {
	Success       bool         `json:"success"`
	Message       string       `json:"message"`
	ID            string       `json:"id,omitempty"`
	ApplicationID string       `json:"applicationId,omitempty"`
	EmailStatus   string       `json:"emailStatus,omitempty"`
	EmailError    *string      `json:"emailError,omitempty"`
	Errors        []FieldError `json:"errors,omitempty"`
}

// Degraded reports whether the submission was stored but not mailed.
func (r *SubmissionResponse) Degraded() bool {
	return r.Success && r.EmailStatus == EmailStatusFailed
}
