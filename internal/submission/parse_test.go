package submission

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "clinic-forms/internal/common/errors"
	"clinic-forms/internal/common/validation"
	"clinic-forms/internal/forms"
)

func TestParseRequest_URLEncoded(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/lab-registration",
		strings.NewReader("labName=City+Lab&servicesOffered=ECG&servicesOffered=Radiology"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")

	got, err := parseRequest(req, forms.LabRegistration, 0)

	require.NoError(t, err)
	assert.Equal(t, validation.Record{
		"labName":         "City Lab",
		"servicesOffered": []string{"ECG", "Radiology"},
	}, got.fields)
	assert.Empty(t, got.files)
}

func TestParseRequest_JSONKeepsNumbers(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/program-application",
		strings.NewReader(`{"participants": 25, "consent": "yes"}`))
	req.Header.Set("Content-Type", "application/json")

	got, err := parseRequest(req, forms.ProgramApplication, 0)

	require.NoError(t, err)
	assert.Equal(t, json.Number("25"), got.fields["participants"])
}

func TestParseRequest_MultipartIgnoresUndeclaredFiles(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("fullName", "Jane Roe"))
	part, err := w.CreateFormFile("frontPhoto", "me.png")
	require.NoError(t, err)
	_, _ = part.Write(pngBytes)
	part, err = w.CreateFormFile("resume", "cv.pdf")
	require.NoError(t, err)
	_, _ = part.Write(pdfBytes)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/doctor-registration", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())

	got, err := parseRequest(req, forms.DoctorRegistration, 0)

	require.NoError(t, err)
	assert.Equal(t, "Jane Roe", got.fields["fullName"])
	require.Contains(t, got.files, "frontPhoto")
	assert.Equal(t, "image/png", got.files["frontPhoto"].MediaType())
	assert.Equal(t, "me.png", got.files["frontPhoto"].Filename)
	assert.NotContains(t, got.files, "resume")
}

func TestParseRequest_Errors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(`"just a string"`))
	req.Header.Set("Content-Type", "application/json")
	_, err := parseRequest(req, forms.Contact, 0)
	assert.Equal(t, apperrors.ErrCodeMalformedRequest, apperrors.Normalize(err).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(`<xml/>`))
	req.Header.Set("Content-Type", "application/xml")
	_, err = parseRequest(req, forms.Contact, 0)
	assert.Equal(t, apperrors.ErrCodeUnsupportedMedia, apperrors.Normalize(err).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(`{"message":"`+strings.Repeat("a", 100)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	_, err = parseRequest(req, forms.Contact, 16)
	assert.Equal(t, apperrors.ErrCodePayloadTooLarge, apperrors.Normalize(err).Code)
}
