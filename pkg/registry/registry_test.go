package registry

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-forms/internal/forms"
)

var builtAt = time.Date(2026, time.October, 15, 8, 0, 0, 0, time.UTC)

func TestBuild(t *testing.T) {
	reg, err := Build(forms.All(), "1.2.0", builtAt)
	require.NoError(t, err)
	require.NoError(t, reg.Validate())

	assert.Equal(t, "2026-10-15T08:00:00Z", reg.LastUpdated)
	assert.Len(t, reg.Forms, len(forms.Names()))

	doctor, ok := reg.Lookup("doctor-registration")
	require.True(t, ok)
	assert.Equal(t, "/api/doctor-registration", doctor.Endpoint)
	assert.Equal(t, "DR", doctor.IDPrefix)
	assert.True(t, doctor.Urgent)
	assert.Equal(t, "multipart/form-data", doctor.Encoding)
	assert.Contains(t, doctor.ErrorCodes, "STORAGE_FAILED")
	require.Len(t, doctor.Files, 3)
	assert.Equal(t, "frontPhoto", doctor.Files[0].Field)
	assert.Equal(t, "object", doctor.InputSchema["type"])

	contact, ok := reg.Lookup("contact")
	require.True(t, ok)
	assert.Equal(t, "application/json", contact.Encoding)
	assert.Empty(t, contact.Files)
	assert.NotContains(t, contact.ErrorCodes, "STORAGE_FAILED")

	_, ok = reg.Lookup("careers")
	assert.False(t, ok)
}

func TestSaveAndLoad(t *testing.T) {
	reg, err := Build(forms.All(), "1.2.0", builtAt)
	require.NoError(t, err)

	for _, name := range []string{"forms.json", "forms.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, SaveRegistry(path, reg))

			loaded, err := LoadRegistry(path)
			require.NoError(t, err)
			require.NoError(t, loaded.Validate())
			assert.Equal(t, reg.Version, loaded.Version)
			require.Len(t, loaded.Forms, len(reg.Forms))
			for i := range reg.Forms {
				assert.Equal(t, reg.Forms[i].ID, loaded.Forms[i].ID)
				assert.Equal(t, reg.Forms[i].Files, loaded.Forms[i].Files)
				assert.Equal(t, reg.Forms[i].Sections, loaded.Forms[i].Sections)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	reg := &FormRegistry{
		Forms: []Form{
			{ID: "contact", Endpoint: "/api/contact", InputSchema: map[string]interface{}{"type": "object"}},
			{ID: "contact", Endpoint: "/api/contact", InputSchema: map[string]interface{}{"type": "object"}},
			{Endpoint: "api/x", Files: []File{{Field: "photo"}}},
		},
	}

	err := reg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"version is required",
		`forms[1]: duplicate id "contact"`,
		`forms[1]: duplicate endpoint "/api/contact"`,
		"forms[2]: id is required",
		`forms[2]: endpoint "api/x" must be an absolute path`,
		"forms[2]: inputSchema is required",
		`forms[2]: file "photo" needs a positive maxBytes`,
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestEncodeUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, (&FormRegistry{}).Encode(&buf, "toml"))
	assert.Equal(t, FormatYAML, FormatFor("x.YML"))
	assert.Equal(t, FormatJSON, FormatFor("x.txt"))
}
