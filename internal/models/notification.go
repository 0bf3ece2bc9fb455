// internal/models/notification.go
package models

import "time"

// UploadedAsset is a file persisted for one submission. It is immutable once
// stored.
type UploadedAsset struct {
	FieldName        string `json:"fieldName"`
	Label            string `json:"label"`
	OriginalFilename string `json:"originalFilename"`
	MIMEType         string `json:"mimeType"`
	SizeBytes        int64  `json:"sizeBytes"`
	StorageKey       string `json:"storageKey"`
	URL              string `json:"url"`
}

// SubmissionRecord is the audit row written for every accepted submission.
type SubmissionRecord struct {
	ID          string                 `json:"id"`
	Form        string                 `json:"form"`
	Status      string                 `json:"status"` // "accepted", "degraded", "failed"
	EmailStatus string                 `json:"emailStatus"`
	MessageID   string                 `json:"messageId,omitempty"`
	Payload     map[string]interface{} `json:"payload"`
	Assets      []UploadedAsset        `json:"assets,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
}

const (
	SubmissionAccepted = "accepted"
	SubmissionDegraded = "degraded"
	SubmissionFailed   = "failed"
)
