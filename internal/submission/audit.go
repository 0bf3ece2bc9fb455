package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"clinic-forms/internal/common/database"
	"clinic-forms/internal/models"
)

var ErrDatabaseInsertFailed = errors.New("DATABASE_INSERT_FAILED")

// AuditRecorder stores one row per processed submission.
type AuditRecorder interface {
	Record(ctx context.Context, rec models.SubmissionRecord) error
}

type PostgresAudit struct {
	db *database.PostgresClient
}

func NewPostgresAudit(db *database.PostgresClient) *PostgresAudit {
	return &PostgresAudit{db: db}
}

func (a *PostgresAudit) Record(ctx context.Context, rec models.SubmissionRecord) error {
	payloadJSON, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal payload: %v", ErrDatabaseInsertFailed, err)
	}
	assets := rec.Assets
	if assets == nil {
		assets = []models.UploadedAsset{}
	}
	assetsJSON, err := json.Marshal(assets)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal assets: %v", ErrDatabaseInsertFailed, err)
	}

	var messageID interface{}
	if rec.MessageID != "" {
		messageID = rec.MessageID
	}

	_, err = a.db.Exec(ctx, `
		INSERT INTO form_submissions (
			id, form, status, email_status, message_id, payload, assets, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID,
		rec.Form,
		rec.Status,
		rec.EmailStatus,
		messageID,
		payloadJSON,
		assetsJSON,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: insert failed: %v", ErrDatabaseInsertFailed, err)
	}
	return nil
}
