// Package submission is the authoritative server side of every form: it
// re-validates, persists uploads, sends the staff notification and reports
// the outcome.
package submission

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"

	apperrors "clinic-forms/internal/common/errors"
	"clinic-forms/internal/common/logger"
	"clinic-forms/internal/common/metrics"
	"clinic-forms/internal/common/observability"
	"clinic-forms/internal/common/validation"
	"clinic-forms/internal/forms"
	"clinic-forms/internal/mail"
	"clinic-forms/internal/models"
	"clinic-forms/internal/notification"
	"clinic-forms/internal/storage"
)

const (
	MessageReceived         = "Thank you! Your submission has been received."
	MessageValidationFailed = "Validation failed"
	MessageDuplicate        = "Duplicate submission"
	EmailErrorGeneric       = "Notification email could not be sent"

	// BodyField carries errors about the request body as a whole.
	BodyField = "_body"
)

// Outcome labels for metrics and the audit table.
const (
	OutcomeAccepted  = "accepted"
	OutcomeDegraded  = "degraded"
	OutcomeInvalid   = "invalid"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

type Dependencies struct {
	Store    storage.ObjectStore
	Mailer   mail.Transport
	Renderer *notification.Renderer
	Logger   logger.Logger

	// Optional.
	Guard   DuplicateGuard
	Audit   AuditRecorder
	Alerter Alerter
	Obs     *observability.Observability
}

type Options struct {
	CollaboratorTimeout time.Duration
	MaxBodyBytes        int64
	Now                 func() time.Time
	NewID               func(prefix string, now time.Time) string
}

type Handler struct {
	deps   Dependencies
	opts   Options
	logger logger.Logger
	errors *apperrors.ErrorHandler
}

func NewHandler(deps Dependencies, opts Options) *Handler {
	if opts.CollaboratorTimeout <= 0 {
		opts.CollaboratorTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = NewApplicationID
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = log.WithFields(map[string]interface{}{"component": "submission"})
	return &Handler{
		deps:   deps,
		opts:   opts,
		logger: log,
		errors: apperrors.NewErrorHandler(log),
	}
}

// NewApplicationID returns "<prefix>-<unix millis><3 random digits>".
func NewApplicationID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%d%03d", prefix, now.UnixMilli(), rand.IntN(1000))
}

// For returns the HTTP handler for one form.
func (h *Handler) For(def *forms.Definition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, resp := h.Process(r.Context(), def, r)
		writeJSON(w, status, resp)
	}
}

// Process runs the full pipeline for one request and returns the status and
// body to send. It never panics on user input.
func (h *Handler) Process(ctx context.Context, def *forms.Definition, r *http.Request) (int, *models.SubmissionResponse) {
	start := h.opts.Now()
	log := logger.FromContext(ctx, h.logger).WithFields(map[string]interface{}{"form": def.Name})

	metrics.SubmissionsInFlight.WithLabelValues(def.Name).Inc()
	defer metrics.SubmissionsInFlight.WithLabelValues(def.Name).Dec()

	status, resp, outcome := h.process(ctx, log, def, r, start)

	elapsed := time.Since(start)
	metrics.SubmissionsTotal.WithLabelValues(def.Name, outcome).Inc()
	metrics.SubmissionDuration.WithLabelValues(def.Name).Observe(elapsed.Seconds())
	h.deps.Obs.RecordSubmission(ctx, def.Name, outcome, elapsed)
	return status, resp
}

func (h *Handler) process(ctx context.Context, log logger.Logger, def *forms.Definition, r *http.Request, now time.Time) (int, *models.SubmissionResponse, string) {
	body, err := parseRequest(r, def, h.opts.MaxBodyBytes)
	if err != nil {
		stdErr := h.errors.Handle(ctx, err, map[string]interface{}{"form": def.Name})
		if stdErr.Code == apperrors.ErrCodeMalformedRequest {
			return http.StatusBadRequest, invalidResponse([]models.FieldError{{Field: BodyField, Message: stdErr.Message}}), OutcomeInvalid
		}
		return h.failure(stdErr, OutcomeInvalid)
	}

	fields := def.Schema.ValidateFields(body.fields, now)
	result := fields
	if def.HasAssets() {
		result = result.Merge(def.Schema.ValidateFiles(body.files))
	}
	if !result.Valid {
		for _, e := range result.Errors {
			metrics.ValidationErrorsTotal.WithLabelValues(def.Name, e.Field).Inc()
		}
		log.Debug("validation failed", map[string]interface{}{"fieldErrors": len(result.Errors)})
		return http.StatusBadRequest, invalidResponse(fieldErrors(result)), OutcomeInvalid
	}

	fingerprint := ""
	if h.deps.Guard != nil {
		fingerprint = Fingerprint(fields.Data, body.files)
		fresh, err := h.deps.Guard.Claim(ctx, def.Name, fingerprint)
		switch {
		case err != nil:
			log.Warn("duplicate guard unavailable", map[string]interface{}{"error": err})
			fingerprint = ""
		case !fresh:
			h.errors.Handle(ctx, apperrors.NewDuplicateSubmissionError(def.Name), nil)
			return http.StatusConflict, &models.SubmissionResponse{Success: false, Message: MessageDuplicate}, OutcomeDuplicate
		}
	}
	release := func() {
		if fingerprint == "" {
			return
		}
		if err := h.deps.Guard.Release(context.WithoutCancel(ctx), def.Name, fingerprint); err != nil {
			log.Warn("failed to release duplicate guard", map[string]interface{}{"error": err})
		}
	}

	applicationID := ""
	if def.GeneratesID() {
		applicationID = h.opts.NewID(def.IDPrefix, now)
		log = log.WithFields(map[string]interface{}{"applicationId": applicationID})
	}

	assets, err := h.persist(ctx, def, applicationID, body.files)
	if err != nil {
		release()
		h.audit(ctx, log, def, applicationID, "", models.SubmissionFailed, "", fields.Data, nil, now)
		return h.failure(h.errors.Handle(ctx, err, map[string]interface{}{"applicationId": applicationID}), OutcomeFailed)
	}

	msg, err := h.deps.Renderer.Render(def, result, applicationID, assets)
	if err != nil {
		release()
		return h.failure(h.errors.Handle(ctx, apperrors.NewInternalError(err), nil), OutcomeFailed)
	}

	messageID, sendErr := h.send(ctx, msg)
	if sendErr != nil {
		stdErr := h.errors.Handle(ctx, sendErr, map[string]interface{}{"provider": h.deps.Mailer.Name()})
		if len(assets) == 0 {
			release()
			h.audit(ctx, log, def, applicationID, "", models.SubmissionFailed, models.EmailStatusFailed, fields.Data, nil, now)
			return h.failure(stdErr, OutcomeFailed)
		}

		log.Warn("submission stored without notification", map[string]interface{}{"errorCode": string(stdErr.Code)})
		h.audit(ctx, log, def, applicationID, "", models.SubmissionDegraded, models.EmailStatusFailed, fields.Data, assets, now)
		h.alert(ctx, log, def, msg)
		emailErr := EmailErrorGeneric
		return http.StatusOK, &models.SubmissionResponse{
			Success:       true,
			Message:       MessageReceived,
			ID:            applicationID,
			ApplicationID: applicationID,
			EmailStatus:   models.EmailStatusFailed,
			EmailError:    &emailErr,
		}, OutcomeDegraded
	}

	id := applicationID
	if id == "" {
		id = messageID
	}
	h.audit(ctx, log, def, id, messageID, models.SubmissionAccepted, models.EmailStatusSent, fields.Data, assets, now)
	h.alert(ctx, log, def, msg)

	log.Info("submission accepted", map[string]interface{}{"id": id, "assets": len(assets)})
	resp := &models.SubmissionResponse{Success: true, Message: MessageReceived, ID: id}
	if def.GeneratesID() {
		resp.ApplicationID = applicationID
	}
	if def.HasAssets() {
		resp.EmailStatus = models.EmailStatusSent
	}
	return http.StatusOK, resp, OutcomeAccepted
}

// persist writes every uploaded file in declaration order. The first failure
// stops the loop; nothing written so far is referenced by a notification.
func (h *Handler) persist(ctx context.Context, def *forms.Definition, applicationID string, files map[string]*validation.FileValue) ([]models.UploadedAsset, error) {
	var assets []models.UploadedAsset
	for _, f := range def.Schema.FileFields() {
		fv, ok := files[f.Name]
		if !ok {
			continue
		}
		key, err := storage.AssetKey(def.Category, applicationID, f.Name, fv.Extension())
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}

		url, err := h.withTimeout(ctx, func(ctx context.Context) (string, error) {
			return h.deps.Store.Put(ctx, storage.Object{Key: key, ContentType: fv.MediaType(), Content: fv.Content})
		})
		if err != nil {
			metrics.CollaboratorFailures.WithLabelValues("object-store").Inc()
			if stderrors.Is(err, context.DeadlineExceeded) {
				return nil, apperrors.NewTimeoutError(h.deps.Store.Name(), err).WithMetadata("storageKey", key)
			}
			return nil, apperrors.NewStorageFailedError(key, err)
		}

		h.deps.Obs.RecordUpload(ctx, def.Name, f.Name, fv.Size)
		assets = append(assets, models.UploadedAsset{
			FieldName:        f.Name,
			Label:            f.Label,
			OriginalFilename: fv.Filename,
			MIMEType:         fv.MediaType(),
			SizeBytes:        fv.Size,
			StorageKey:       key,
			URL:              url,
		})
	}
	return assets, nil
}

func (h *Handler) send(ctx context.Context, msg *notification.Message) (string, error) {
	id, err := h.withTimeout(ctx, func(ctx context.Context) (string, error) {
		return h.deps.Mailer.Send(ctx, msg)
	})
	if err != nil {
		metrics.CollaboratorFailures.WithLabelValues("mail").Inc()
		if stderrors.Is(err, context.DeadlineExceeded) {
			return "", apperrors.NewTimeoutError(h.deps.Mailer.Name(), err)
		}
		return "", apperrors.NewNotificationSendFailedError(h.deps.Mailer.Name(), err)
	}
	return id, nil
}

// audit and alert are best effort: failures are logged and never change the
// response.
func (h *Handler) audit(ctx context.Context, log logger.Logger, def *forms.Definition, id, messageID, status, emailStatus string, data validation.Record, assets []models.UploadedAsset, now time.Time) {
	if h.deps.Audit == nil {
		return
	}
	if id == "" {
		id = uuid.NewString()
	}
	rec := models.SubmissionRecord{
		ID:          id,
		Form:        def.Name,
		Status:      status,
		EmailStatus: emailStatus,
		MessageID:   messageID,
		Payload:     data,
		Assets:      assets,
		CreatedAt:   now.UTC(),
	}
	_, err := h.withTimeout(context.WithoutCancel(ctx), func(ctx context.Context) (string, error) {
		return "", h.deps.Audit.Record(ctx, rec)
	})
	if err != nil {
		metrics.CollaboratorFailures.WithLabelValues("audit").Inc()
		stdErr := apperrors.NewDatabaseInsertFailedError(err)
		log.Warn("audit record failed", map[string]interface{}{
			"error":     err,
			"errorCode": string(stdErr.Code),
			"retryable": stdErr.Retryable,
			"id":        id,
		})
	}
}

func (h *Handler) alert(ctx context.Context, log logger.Logger, def *forms.Definition, msg *notification.Message) {
	if h.deps.Alerter == nil || !def.Urgent {
		return
	}
	_, err := h.withTimeout(context.WithoutCancel(ctx), func(ctx context.Context) (string, error) {
		return "", h.deps.Alerter.Alert(ctx, msg)
	})
	if err != nil {
		metrics.CollaboratorFailures.WithLabelValues("sms").Inc()
		log.Warn("staff alert failed", map[string]interface{}{"error": err})
	}
}

func (h *Handler) withTimeout(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.opts.CollaboratorTimeout)
	defer cancel()
	return fn(ctx)
}

func (h *Handler) failure(stdErr *apperrors.StandardError, outcome string) (int, *models.SubmissionResponse, string) {
	return apperrors.HTTPStatus(stdErr.Code), &models.SubmissionResponse{
		Success: false,
		Message: apperrors.ClientMessage(stdErr),
	}, outcome
}

func invalidResponse(errs []models.FieldError) *models.SubmissionResponse {
	return &models.SubmissionResponse{Success: false, Message: MessageValidationFailed, Errors: errs}
}

func fieldErrors(res *validation.ValidationResult) []models.FieldError {
	out := make([]models.FieldError, 0, len(res.Errors))
	for _, e := range res.Errors {
		out = append(out, models.FieldError{Field: e.Field, Message: e.Message})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
