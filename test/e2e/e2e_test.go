// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"errors"
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

	"clinic-forms/internal/client"
	"clinic-forms/internal/common/config"
	"clinic-forms/internal/common/database"
	commonhttp "clinic-forms/internal/common/http"
	"clinic-forms/internal/common/logger"
	"clinic-forms/internal/common/validation"
	"clinic-forms/internal/forms"
	"clinic-forms/internal/models"
	"clinic-forms/internal/notification"
	"clinic-forms/internal/server"
	"clinic-forms/internal/storage"
	"clinic-forms/internal/submission"
)

var (
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 256)...)
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")

	applicationIDPattern = regexp.MustCompile(`^DR-\d+$`)
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []*notification.Message
	err  error
}

func (m *recordingMailer) Name() string { return "recording" }

func (m *recordingMailer) Send(ctx context.Context, msg *notification.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return "ses-0001", nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type stack struct {
	url    string
	store  *storage.MemoryStore
	mailer *recordingMailer
}

func startStack(t *testing.T, mailErr error) *stack {
	t.Helper()

	cfg := &config.Config{}
	cfg.App.Name = "clinic-forms"
	cfg.App.Version = "1.0.0"
	cfg.App.Environment = "test"
	cfg.Server.MaxBodyBytes = 32 << 20
	cfg.Mail.DefaultRecipient = "staff@clinic.test"

	log := logger.NewTestLogger(t)
	mr := miniredis.RunT(t)
	s := &stack{
		store:  storage.NewMemoryStore("https://cdn.clinic.test/uploads"),
		mailer: &recordingMailer{err: mailErr},
	}

	handler := submission.NewHandler(submission.Dependencies{
		Store:    s.store,
		Mailer:   s.mailer,
		Renderer: notification.NewRenderer(cfg.Mail),
		Logger:   log,
		Guard: submission.NewRedisGuard(
			database.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()})),
			time.Minute,
		),
	}, submission.Options{MaxBodyBytes: cfg.Server.MaxBodyBytes})

	srv, err := server.NewServer(cfg, handler, log, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	s.url = ts.URL
	return s
}

func (s *stack) controller(t *testing.T, def *forms.Definition) *client.Controller {
	t.Helper()
	c := client.NewController(def, commonhttp.NewClient(s.url, 10*time.Second), client.Options{Logger: logger.NewTestLogger(t)})
	t.Cleanup(c.Close)
	return c
}

func fillContact(c *client.Controller, name string) {
	c.Set("fullName", name)
	c.Set("email", "john@gmail.com")
	c.Set("phone", "+92 300 1234567")
	c.Set("reason", "Team")
}

func fillDoctor(c *client.Controller) {
	for k, v := range map[string]interface{}{
		"fullName":        "Jane Roe",
		"email":           "jane.roe@gmail.com",
		"phone":           "+923001234567",
		"specialization":  "Cardiology",
		"pmdcNumber":      "12345-P",
		"pmdcExpiry":      "2030-06-30",
		"experienceYears": 12,
		"qualification":   "MBBS, FCPS",
		"city":            "Lahore",
		"availableDays":   []string{"Monday", "Thursday"},
		"consent":         true,
	} {
		c.Set(k, v)
	}
	c.SetFile("frontPhoto", validation.NewFileValue("me.png", "", pngBytes))
	c.SetFile("degreePdf", validation.NewFileValue("degree.pdf", "", pdfBytes))
	c.SetFile("pmdcCertificatePdf", validation.NewFileValue("pmdc.pdf", "", pdfBytes))
}

func TestContactSubmission(t *testing.T) {
	s := startStack(t, nil)
	c := s.controller(t, forms.Contact)
	fillContact(c, "John Doe")
	require.True(t, c.CanSubmit(), "errors: %v", c.FieldErrors())

	resp, err := c.Submit(context.Background())

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.ID)
	assert.Empty(t, resp.ApplicationID)
	assert.Equal(t, client.Success, c.State().State)
	assert.Equal(t, 1, s.mailer.count())
	assert.Empty(t, s.store.Keys())
}

func TestContactValidationFailure(t *testing.T) {
	s := startStack(t, nil)

	// The controller refuses to send invalid data, so post the raw body.
	hc := commonhttp.NewClient(s.url, 10*time.Second)
	body := `{"fullName":"J","email":"john@gmail.com","phone":"+92 300 1234567","reason":"Team"}`
	status, resp, err := hc.PostForm(context.Background(), "/api/contact", "application/json", strings.NewReader(body))

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, resp.Success)
	require.NotEmpty(t, resp.Errors)
	fields := map[string]bool{}
	for _, fe := range resp.Errors {
		fields[fe.Field] = true
	}
	assert.Equal(t, map[string]bool{"fullName": true}, fields)
	assert.Zero(t, s.mailer.count())

	c := s.controller(t, forms.Contact)
	fillContact(c, "J")
	_, err = c.Submit(context.Background())
	assert.ErrorIs(t, err, client.ErrInvalid)
	assert.Contains(t, c.FieldErrors(), "fullName")
	assert.Zero(t, s.mailer.count())
}

func TestDoctorRegistration(t *testing.T) {
	s := startStack(t, nil)
	c := s.controller(t, forms.DoctorRegistration)
	fillDoctor(c)
	require.True(t, c.CanSubmit(), "errors: %v", c.FieldErrors())

	resp, err := c.Submit(context.Background())

	require.NoError(t, err)
	require.True(t, resp.Success, resp.Message)
	assert.Regexp(t, applicationIDPattern, resp.ApplicationID)
	assert.Equal(t, models.EmailStatusSent, resp.EmailStatus)
	assert.Nil(t, resp.EmailError)

	assert.ElementsMatch(t, []string{
		"doctors/" + resp.ApplicationID + "/frontPhoto.png",
		"doctors/" + resp.ApplicationID + "/degreePdf.pdf",
		"doctors/" + resp.ApplicationID + "/pmdcCertificatePdf.pdf",
	}, s.store.Keys())

	photo, ok := s.store.Get("doctors/" + resp.ApplicationID + "/frontPhoto.png")
	require.True(t, ok)
	assert.Equal(t, pngBytes, photo.Content)
	assert.Equal(t, 1, s.mailer.count())
}

func TestDoctorRegistrationMailFailure(t *testing.T) {
	s := startStack(t, errors.New("ses: throttled"))
	c := s.controller(t, forms.DoctorRegistration)
	fillDoctor(c)

	resp, err := c.Submit(context.Background())

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, models.EmailStatusFailed, resp.EmailStatus)
	require.NotNil(t, resp.EmailError)
	assert.NotContains(t, *resp.EmailError, "throttled")
	assert.Regexp(t, applicationIDPattern, resp.ApplicationID)
	assert.Len(t, s.store.Keys(), 3)

	snap := c.State()
	assert.Equal(t, client.Success, snap.State)
	assert.Equal(t, client.MessageNotConfirmed, snap.Message)
}

func TestResubmissionAfterReset(t *testing.T) {
	s := startStack(t, nil)
	c := s.controller(t, forms.Contact)

	fillContact(c, "John Doe")
	_, err := c.Submit(context.Background())
	require.NoError(t, err)

	c.Reset()
	fillContact(c, "Jane Doe")
	resp, err := c.Submit(context.Background())

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, s.mailer.count())
}

func TestDuplicateSubmissionRejected(t *testing.T) {
	s := startStack(t, nil)
	c := s.controller(t, forms.Contact)

	fillContact(c, "John Doe")
	_, err := c.Submit(context.Background())
	require.NoError(t, err)

	c.Reset()
	fillContact(c, "John Doe")
	resp, err := c.Submit(context.Background())

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, submission.MessageDuplicate, resp.Message)
	assert.Equal(t, client.Error, c.State().State)
	assert.Equal(t, "John Doe", c.Values()["fullName"])
	assert.Equal(t, 1, s.mailer.count())
}
