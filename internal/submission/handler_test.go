package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-forms/internal/common/config"
	"clinic-forms/internal/common/database"
	"clinic-forms/internal/common/logger"
	"clinic-forms/internal/forms"
	"clinic-forms/internal/models"
	"clinic-forms/internal/notification"
	"clinic-forms/internal/storage"
)

var handlerNow = time.Date(2026, time.October, 15, 10, 30, 0, 0, time.UTC)

var (
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 128)...)
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []*notification.Message
	err  error
}

func (m *fakeMailer) Name() string { return "fake" }

func (m *fakeMailer) Send(ctx context.Context, msg *notification.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return "msg-1", nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type auditLog struct {
	mu   sync.Mutex
	recs []models.SubmissionRecord
}

func (a *auditLog) Record(ctx context.Context, rec models.SubmissionRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recs = append(a.recs, rec)
	return nil
}

type fakeAlerter struct {
	alerts []string
	err    error
}

func (f *fakeAlerter) Alert(ctx context.Context, msg *notification.Message) error {
	f.alerts = append(f.alerts, msg.Subject)
	return f.err
}

type failingStore struct{ err error }

func (s failingStore) Name() string { return "broken" }
func (s failingStore) Put(ctx context.Context, obj storage.Object) (string, error) {
	return "", s.err
}

type blockingStore struct{}

func (blockingStore) Name() string { return "slow" }
func (blockingStore) Put(ctx context.Context, obj storage.Object) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type fixture struct {
	handler *Handler
	store   *storage.MemoryStore
	mailer  *fakeMailer
	audit   *auditLog
	alerter *fakeAlerter
	redis   *miniredis.Miniredis
}

func newFixture(t *testing.T, mutate func(*Dependencies, *Options)) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	f := &fixture{
		store:   storage.NewMemoryStore("https://cdn.clinic.test/uploads"),
		mailer:  &fakeMailer{},
		audit:   &auditLog{},
		alerter: &fakeAlerter{},
		redis:   mr,
	}
	deps := Dependencies{
		Store:    f.store,
		Mailer:   f.mailer,
		Renderer: notification.NewRenderer(config.MailConfig{DefaultRecipient: "staff@clinic.test"}),
		Logger:   logger.NewTestLogger(t),
		Guard: NewRedisGuard(
			database.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()})),
			10*time.Minute,
		),
		Audit:   f.audit,
		Alerter: f.alerter,
	}
	opts := Options{
		CollaboratorTimeout: time.Second,
		MaxBodyBytes:        1 << 20,
		Now:                 func() time.Time { return handlerNow },
		NewID: func(prefix string, _ time.Time) string {
			return prefix + "-1760524200000042"
		},
	}
	if mutate != nil {
		mutate(&deps, &opts)
	}
	f.handler = NewHandler(deps, opts)
	return f
}

func (f *fixture) serve(t *testing.T, def *forms.Definition, req *http.Request) (int, models.SubmissionResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.For(def).ServeHTTP(rec, req)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var resp models.SubmissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func jsonRequest(t *testing.T, form string, body interface{}) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/"+form, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func contactBody() map[string]interface{} {
	return map[string]interface{}{
		"fullName": "John Doe",
		"email":    "john@gmail.com",
		"phone":    "+92 300 1234567",
		"reason":   "Team",
		"message":  "Hello",
	}
}

func doctorRequest(t *testing.T, files map[string][]byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range map[string]string{
		"fullName":        "Jane Roe",
		"email":           "jane.roe@gmail.com",
		"phone":           "+923001234567",
		"specialization":  "Cardiology",
		"pmdcNumber":      "12345-P",
		"pmdcExpiry":      "2027-06-30",
		"experienceYears": "12",
		"qualification":   "MBBS, FCPS",
		"city":            "Lahore",
		"availableDays":   `["Monday","Thursday"]`,
		"consent":         "true",
	} {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, content := range files {
		part, err := w.CreateFormFile(name, name+".bin")
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/doctor-registration", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func doctorFiles() map[string][]byte {
	return map[string][]byte{
		"frontPhoto":         pngBytes,
		"degreePdf":          pdfBytes,
		"pmdcCertificatePdf": pdfBytes,
	}
}

func TestHandler_ContactAccepted(t *testing.T) {
	f := newFixture(t, nil)

	status, resp := f.serve(t, forms.Contact, jsonRequest(t, "contact", contactBody()))

	assert.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
	assert.Equal(t, MessageReceived, resp.Message)
	assert.Equal(t, "msg-1", resp.ID)
	assert.Empty(t, resp.ApplicationID)
	assert.Empty(t, resp.EmailStatus)

	require.Equal(t, 1, f.mailer.count())
	msg := f.mailer.sent[0]
	assert.Equal(t, "john@gmail.com", msg.ReplyTo)
	assert.Equal(t, []string{"staff@clinic.test"}, msg.Recipients)
	assert.Equal(t, "New Contact Enquiry: John Doe (Team)", msg.Subject)

	require.Len(t, f.audit.recs, 1)
	rec := f.audit.recs[0]
	assert.Equal(t, "msg-1", rec.ID)
	assert.Equal(t, models.SubmissionAccepted, rec.Status)
	assert.Equal(t, models.EmailStatusSent, rec.EmailStatus)
	assert.Equal(t, handlerNow, rec.CreatedAt)

	assert.Empty(t, f.alerter.alerts, "contact enquiries are not urgent")
}

func TestHandler_ValidationFailureHasNoSideEffects(t *testing.T) {
	f := newFixture(t, nil)
	body := contactBody()
	body["fullName"] = "J"
	body["email"] = "not-an-email"

	status, resp := f.serve(t, forms.Contact, jsonRequest(t, "contact", body))

	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, resp.Success)
	assert.Equal(t, MessageValidationFailed, resp.Message)
	fields := map[string]bool{}
	for _, e := range resp.Errors {
		fields[e.Field] = true
		assert.NotEmpty(t, e.Message)
	}
	assert.Equal(t, map[string]bool{"fullName": true, "email": true}, fields)

	assert.Zero(t, f.mailer.count())
	assert.Empty(t, f.audit.recs)
	assert.Empty(t, f.redis.Keys())
}

func TestHandler_DoctorRegistration(t *testing.T) {
	f := newFixture(t, nil)

	status, resp := f.serve(t, forms.DoctorRegistration, doctorRequest(t, doctorFiles()))

	require.Equal(t, http.StatusOK, status, resp.Message)
	assert.True(t, resp.Success)
	assert.Equal(t, "DR-1760524200000042", resp.ApplicationID)
	assert.Equal(t, resp.ApplicationID, resp.ID)
	assert.Equal(t, models.EmailStatusSent, resp.EmailStatus)
	assert.Nil(t, resp.EmailError)

	assert.ElementsMatch(t, []string{
		"doctors/DR-1760524200000042/frontPhoto.png",
		"doctors/DR-1760524200000042/degreePdf.pdf",
		"doctors/DR-1760524200000042/pmdcCertificatePdf.pdf",
	}, f.store.Keys())

	require.Equal(t, 1, f.mailer.count())
	msg := f.mailer.sent[0]
	assert.Equal(t, "DR-1760524200000042", msg.Reference)
	assert.Contains(t, msg.HTML, "https://cdn.clinic.test/uploads/doctors/DR-1760524200000042/frontPhoto.png")

	require.Len(t, f.audit.recs, 1)
	assert.Len(t, f.audit.recs[0].Assets, 3)
	assert.NotContains(t, f.audit.recs[0].Payload, "frontPhoto")

	assert.Equal(t, []string{"New Doctor Registration: Dr. Jane Roe (Cardiology)"}, f.alerter.alerts)
}

func TestHandler_FileAndFieldErrorsAreMerged(t *testing.T) {
	f := newFixture(t, nil)
	files := doctorFiles()
	files["degreePdf"] = pngBytes
	delete(files, "pmdcCertificatePdf")
	req := doctorRequest(t, files)

	status, resp := f.serve(t, forms.DoctorRegistration, req)

	assert.Equal(t, http.StatusBadRequest, status)
	got := map[string]string{}
	for _, e := range resp.Errors {
		got[e.Field] = e.Message
	}
	assert.Equal(t, "Degree must be one of: PDF", got["degreePdf"])
	assert.Contains(t, got, "pmdcCertificatePdf")
	assert.Empty(t, f.store.Keys())
	assert.Zero(t, f.mailer.count())
}

func TestHandler_DegradedWhenMailFailsAfterUpload(t *testing.T) {
	f := newFixture(t, nil)
	f.mailer.err = errors.New("ses: throttled")

	status, resp := f.serve(t, forms.DoctorRegistration, doctorRequest(t, doctorFiles()))

	assert.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
	assert.True(t, resp.Degraded())
	assert.Equal(t, "DR-1760524200000042", resp.ApplicationID)
	require.NotNil(t, resp.EmailError)
	assert.Equal(t, EmailErrorGeneric, *resp.EmailError)
	assert.NotContains(t, *resp.EmailError, "throttled")

	assert.Len(t, f.store.Keys(), 3)
	require.Len(t, f.audit.recs, 1)
	assert.Equal(t, models.SubmissionDegraded, f.audit.recs[0].Status)
	assert.Equal(t, models.EmailStatusFailed, f.audit.recs[0].EmailStatus)
	assert.Len(t, f.redis.Keys(), 1, "guard stays claimed for stored submissions")
}

func TestHandler_MailFailureWithoutAssets(t *testing.T) {
	f := newFixture(t, nil)
	f.mailer.err = errors.New("smtp: 554 rejected")

	status, resp := f.serve(t, forms.Contact, jsonRequest(t, "contact", contactBody()))

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.False(t, resp.Success)
	assert.NotContains(t, resp.Message, "554")
	assert.Empty(t, f.redis.Keys(), "guard is released so the visitor can retry")

	require.Len(t, f.audit.recs, 1)
	assert.Equal(t, models.SubmissionFailed, f.audit.recs[0].Status)

	f.mailer.err = nil
	status, _ = f.serve(t, forms.Contact, jsonRequest(t, "contact", contactBody()))
	assert.Equal(t, http.StatusOK, status)
}

func TestHandler_StorageFailureStopsBeforeMail(t *testing.T) {
	f := newFixture(t, func(d *Dependencies, _ *Options) {
		d.Store = failingStore{err: errors.New("AccessDenied")}
	})

	status, resp := f.serve(t, forms.DoctorRegistration, doctorRequest(t, doctorFiles()))

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.False(t, resp.Success)
	assert.NotContains(t, resp.Message, "AccessDenied")
	assert.Empty(t, resp.ApplicationID)
	assert.Zero(t, f.mailer.count())
	assert.Empty(t, f.redis.Keys())
	assert.Empty(t, f.alerter.alerts)
}

func TestHandler_StorageTimeout(t *testing.T) {
	f := newFixture(t, func(d *Dependencies, o *Options) {
		d.Store = blockingStore{}
		o.CollaboratorTimeout = 20 * time.Millisecond
	})

	start := time.Now()
	status, resp := f.serve(t, forms.DoctorRegistration, doctorRequest(t, doctorFiles()))

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.False(t, resp.Success)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Zero(t, f.mailer.count())
}

func TestHandler_DuplicateSubmission(t *testing.T) {
	f := newFixture(t, nil)

	status, _ := f.serve(t, forms.Contact, jsonRequest(t, "contact", contactBody()))
	require.Equal(t, http.StatusOK, status)

	status, resp := f.serve(t, forms.Contact, jsonRequest(t, "contact", contactBody()))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, MessageDuplicate, resp.Message)
	assert.Equal(t, 1, f.mailer.count())

	body := contactBody()
	body["message"] = "A different question"
	status, _ = f.serve(t, forms.Contact, jsonRequest(t, "contact", body))
	assert.Equal(t, http.StatusOK, status)
}

func TestHandler_GuardUnavailableFailsOpen(t *testing.T) {
	f := newFixture(t, nil)
	f.redis.Close()

	status, resp := f.serve(t, forms.Contact, jsonRequest(t, "contact", contactBody()))

	assert.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
}

func TestHandler_AlertFailureDoesNotChangeResponse(t *testing.T) {
	f := newFixture(t, nil)
	f.alerter.err = errors.New("sns: opted out")

	status, resp := f.serve(t, forms.DoctorRegistration, doctorRequest(t, doctorFiles()))

	assert.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
	assert.Len(t, f.alerter.alerts, 1)
}

func TestHandler_BadRequests(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		limit       int64
		wantStatus  int
		wantBody    bool
	}{
		{name: "malformed json", contentType: "application/json", body: `{"fullName":`, wantStatus: http.StatusBadRequest, wantBody: true},
		{name: "json array", contentType: "application/json", body: `[1,2]`, wantStatus: http.StatusBadRequest, wantBody: true},
		{name: "trailing data", contentType: "application/json", body: `{} {}`, wantStatus: http.StatusBadRequest, wantBody: true},
		{name: "unsupported type", contentType: "text/plain", body: "hello", wantStatus: http.StatusUnsupportedMediaType},
		{name: "missing type", body: "hello", wantStatus: http.StatusUnsupportedMediaType},
		{name: "too large", contentType: "application/json", body: `{"message":"` + strings.Repeat("a", 4096) + `"}`, limit: 1024, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(_ *Dependencies, o *Options) {
				if tt.limit > 0 {
					o.MaxBodyBytes = tt.limit
				}
			})
			req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			status, resp := f.serve(t, forms.Contact, req)

			assert.Equal(t, tt.wantStatus, status)
			assert.False(t, resp.Success)
			if tt.wantBody {
				require.Len(t, resp.Errors, 1)
				assert.Equal(t, BodyField, resp.Errors[0].Field)
			}
			assert.Zero(t, f.mailer.count())
		})
	}
}

func TestHandler_URLEncodedNewsletter(t *testing.T) {
	f := newFixture(t, func(d *Dependencies, _ *Options) { d.Guard = nil })
	req := httptest.NewRequest(http.MethodPost, "/api/newsletter", strings.NewReader("email=reader%40gmail.com"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	status, resp := f.serve(t, forms.Newsletter, req)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "msg-1", resp.ID)
}

func TestNewApplicationID(t *testing.T) {
	now := time.UnixMilli(1760524200123)
	id := NewApplicationID("LAB", now)
	assert.Regexp(t, regexp.MustCompile(`^LAB-1760524200123\d{3}$`), id)
}
