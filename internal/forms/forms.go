// Package forms holds the single definition of every submittable form. The
// client controller, the submission handler, the notification renderer and
// the registry tooling all read these values; nothing else declares fields.
package forms

import (
	"fmt"
	"sort"
	"strings"

	"clinic-forms/internal/common/validation"
)

// Section groups fields under a heading in notifications.
type Section struct {
	Title  string
	Fields []string
}

// Definition is one form: its schema plus routing and presentation data.
type Definition struct {
	Name     string // URL slug, POST /api/<Name>
	Title    string
	Category string // object store prefix
	IDPrefix string // empty means the mail provider message id is used
	Urgent   bool

	Schema   *validation.FormSchema
	Sections []Section
	Subject  func(data validation.Record) string

	// ReplyToField names the field holding the submitter email.
	ReplyToField string
}

// HasAssets reports whether submissions persist uploaded files.
func (d *Definition) HasAssets() bool {
	return d.Schema.HasFiles()
}

// GeneratesID reports whether the server assigns an application id.
func (d *Definition) GeneratesID() bool {
	return d.IDPrefix != ""
}

// Label returns the human label for a field, or the field name.
func (d *Definition) Label(field string) string {
	if f, ok := d.Schema.Field(field); ok {
		return f.Label
	}
	return field
}

func (d *Definition) validate() error {
	seen := map[string]bool{}
	for _, s := range d.Sections {
		for _, name := range s.Fields {
			if _, ok := d.Schema.Field(name); !ok {
				return fmt.Errorf("form %s: section %q lists unknown field %q", d.Name, s.Title, name)
			}
			if seen[name] {
				return fmt.Errorf("form %s: field %q appears in more than one section", d.Name, name)
			}
			seen[name] = true
		}
	}
	for _, f := range d.Schema.Fields {
		if !seen[f.Name] {
			return fmt.Errorf("form %s: field %q is not in any section", d.Name, f.Name)
		}
	}
	if _, ok := d.Schema.Field(d.ReplyToField); !ok {
		return fmt.Errorf("form %s: reply-to field %q is not declared", d.Name, d.ReplyToField)
	}
	if _, err := d.Schema.Compile(); err != nil {
		return err
	}
	return nil
}

var registry = map[string]*Definition{}

func register(d *Definition) *Definition {
	if d.ReplyToField == "" {
		d.ReplyToField = "email"
	}
	if err := d.validate(); err != nil {
		panic(err)
	}
	if _, dup := registry[d.Name]; dup {
		panic("forms: duplicate form " + d.Name)
	}
	registry[d.Name] = d
	return d
}

// All returns every form sorted by name.
func All() []*Definition {
	out := make([]*Definition, 0, len(registry))
	for _, d := range registry {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup finds a form by its slug.
func Lookup(name string) (*Definition, bool) {
	d, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// Names lists the form slugs, sorted.
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, d := range all {
		names[i] = d.Name
	}
	return names
}

func str(data validation.Record, key string) string {
	s, _ := data[key].(string)
	return s
}
