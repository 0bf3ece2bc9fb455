// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "clinic-forms/internal/common/errors"
	"clinic-forms/internal/forms"
)

// Encoding formats for registry documents.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Build describes defs in a registry document.
func Build(defs []*forms.Definition, version string, now time.Time) (*FormRegistry, error) {
	reg := &FormRegistry{
		Version:     version,
		LastUpdated: now.UTC().Format(time.RFC3339),
		Forms:       make([]Form, 0, len(defs)),
	}
	for _, d := range defs {
		f, err := describe(d)
		if err != nil {
			return nil, fmt.Errorf("describe %s: %w", d.Name, err)
		}
		reg.Forms = append(reg.Forms, f)
	}
	return reg, nil
}

func describe(d *forms.Definition) (Form, error) {
	raw, err := json.Marshal(d.Schema.JSONSchema())
	if err != nil {
		return Form{}, err
	}
	var schema map[string]interface{}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return Form{}, err
	}

	f := Form{
		ID:          d.Name,
		DisplayName: d.Title,
		Category:    d.Category,
		Endpoint:    "/api/" + d.Name,
		IDPrefix:    d.IDPrefix,
		Urgent:      d.Urgent,
		Encoding:    "application/json",
		InputSchema: schema,
		ErrorCodes: []string{
			string(apperrors.ErrCodeValidationFailed),
			string(apperrors.ErrCodeMalformedRequest),
			string(apperrors.ErrCodeDuplicate),
			string(apperrors.ErrCodeRateLimited),
			string(apperrors.ErrCodeNotificationSendFailed),
			string(apperrors.ErrCodeUpstreamTimeout),
		},
	}
	for _, fd := range d.Schema.FileDescriptors() {
		f.Files = append(f.Files, File{
			Field:     fd.Field,
			Label:     fd.Label,
			Required:  fd.Required,
			MaxBytes:  fd.MaxBytes,
			MIMETypes: fd.MIMETypes,
		})
	}
	if d.HasAssets() {
		f.Encoding = "multipart/form-data"
		f.ErrorCodes = append(f.ErrorCodes, string(apperrors.ErrCodeStorageFailed))
	}
	for _, s := range d.Sections {
		f.Sections = append(f.Sections, Section{Title: s.Title, Fields: s.Fields})
	}
	return f, nil
}

// Lookup finds a form by id.
func (r *FormRegistry) Lookup(id string) (*Form, bool) {
	for i := range r.Forms {
		if r.Forms[i].ID == id {
			return &r.Forms[i], true
		}
	}
	return nil, false
}

// Validate checks the document for missing and duplicate entries.
func (r *FormRegistry) Validate() error {
	var errs []error
	if r.Version == "" {
		errs = append(errs, errors.New("version is required"))
	}
	seenID := map[string]bool{}
	seenEndpoint := map[string]bool{}
	for i, f := range r.Forms {
		switch {
		case f.ID == "":
			errs = append(errs, fmt.Errorf("forms[%d]: id is required", i))
		case seenID[f.ID]:
			errs = append(errs, fmt.Errorf("forms[%d]: duplicate id %q", i, f.ID))
		}
		seenID[f.ID] = true

		if !strings.HasPrefix(f.Endpoint, "/") {
			errs = append(errs, fmt.Errorf("forms[%d]: endpoint %q must be an absolute path", i, f.Endpoint))
		} else if seenEndpoint[f.Endpoint] {
			errs = append(errs, fmt.Errorf("forms[%d]: duplicate endpoint %q", i, f.Endpoint))
		}
		seenEndpoint[f.Endpoint] = true

		if len(f.InputSchema) == 0 {
			errs = append(errs, fmt.Errorf("forms[%d]: inputSchema is required", i))
		}
		for _, file := range f.Files {
			if file.MaxBytes <= 0 {
				errs = append(errs, fmt.Errorf("forms[%d]: file %q needs a positive maxBytes", i, file.Field))
			}
		}
	}
	return errors.Join(errs...)
}

// Encode writes the registry as JSON or YAML.
func (r *FormRegistry) Encode(w io.Writer, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(r)
	default:
		return fmt.Errorf("unknown registry format %q", format)
	}
}

// FormatFor picks the format from a file extension, defaulting to JSON.
func FormatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

func LoadRegistry(path string) (*FormRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg FormRegistry
	if FormatFor(path) == FormatYAML {
		err = yaml.Unmarshal(data, &reg)
	} else {
		err = json.Unmarshal(data, &reg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &reg, nil
}

// SaveRegistry writes reg to path in the format its extension implies.
func SaveRegistry(path string, reg *FormRegistry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := reg.Encode(f, FormatFor(path)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
