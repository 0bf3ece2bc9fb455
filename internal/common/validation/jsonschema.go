package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// JSONSchema is the draft-07 document describing a form's normalized data.
type JSONSchema struct {
	Schema               string              `json:"$schema,omitempty"`
	Title                string              `json:"title,omitempty"`
	Type                 string              `json:"type"`
	Properties           map[string]Property `json:"properties"`
	Required             []string            `json:"required,omitempty"`
	AdditionalProperties bool                `json:"additionalProperties"`
}

type Property struct {
	Type        string    `json:"type"`
	Title       string    `json:"title,omitempty"`
	Format      string    `json:"format,omitempty"`
	Minimum     *float64  `json:"minimum,omitempty"`
	Maximum     *float64  `json:"maximum,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Pattern     *string   `json:"pattern,omitempty"`
	MinLength   *int      `json:"minLength,omitempty"`
	MaxLength   *int      `json:"maxLength,omitempty"`
	MinItems    *int      `json:"minItems,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// FileDescriptor describes a file field, which JSON Schema cannot express.
type FileDescriptor struct {
	Field     string   `json:"field" yaml:"field"`
	Label     string   `json:"label" yaml:"label"`
	Required  bool     `json:"required" yaml:"required"`
	MaxBytes  int64    `json:"maxBytes" yaml:"maxBytes"`
	MIMETypes []string `json:"mimeTypes" yaml:"mimeTypes"`
}

// JSONSchema exports the non-file fields as a JSON Schema document for the
// normalized (post-transform) shape.
func (s *FormSchema) JSONSchema() JSONSchema {
	doc := JSONSchema{
		Schema:     "http://json-schema.org/draft-07/schema#",
		Title:      s.Name,
		Type:       "object",
		Properties: map[string]Property{},
	}
	for _, f := range s.Fields {
		if f.Type == TypeFile {
			continue
		}
		if f.Required {
			doc.Required = append(doc.Required, f.Name)
		}
		doc.Properties[f.Name] = propertyFor(f)
	}
	return doc
}

func propertyFor(f *FieldSpec) Property {
	p := Property{Title: f.Label}
	switch f.Type {
	case TypeString, TypeEnum:
		p.Type = "string"
		if f.MinLength > 0 {
			p.MinLength = intPtr(f.MinLength)
		}
		if f.MaxLength > 0 {
			p.MaxLength = intPtr(f.MaxLength)
		}
		if f.Pattern != nil {
			pattern := f.Pattern.String()
			p.Pattern = &pattern
		}
		if f.Type == TypeEnum {
			p.Enum = f.Enum
		}
	case TypeNumber:
		p.Type = "number"
		if f.Integer {
			p.Type = "integer"
		}
		p.Minimum, p.Maximum = f.Min, f.Max
	case TypeBoolean:
		p.Type = "boolean"
	case TypeDate:
		p.Type = "string"
		p.Format = "date"
	case TypeStringArray:
		p.Type = "array"
		if f.MinItems > 0 {
			p.MinItems = intPtr(f.MinItems)
		}
		p.Items = &Property{Type: "string", Enum: f.ItemEnum}
	}
	return p
}

// FileDescriptors lists the file fields.
func (s *FormSchema) FileDescriptors() []FileDescriptor {
	var out []FileDescriptor
	for _, f := range s.FileFields() {
		out = append(out, FileDescriptor{
			Field:     f.Name,
			Label:     f.Label,
			Required:  f.Required,
			MaxBytes:  f.MaxBytes,
			MIMETypes: f.MIMETypes,
		})
	}
	return out
}

// Compile checks that the exported document is a valid JSON Schema.
func (s *FormSchema) Compile() (*gojsonschema.Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(s.JSONSchema()))
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", s.Name, err)
	}
	return compiled, nil
}

// ConformsToExport validates normalized data against the exported document.
// File values are ignored.
func (s *FormSchema) ConformsToExport(data Record) error {
	compiled, err := s.Compile()
	if err != nil {
		return err
	}
	doc := make(map[string]interface{}, len(data))
	for k, v := range data {
		if _, isFile := v.(*FileValue); isFile {
			continue
		}
		doc[k] = v
	}
	res, err := compiled.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema %s: %w", s.Name, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("schema %s: %s", s.Name, strings.Join(msgs, "; "))
}

func intPtr(i int) *int { return &i }
