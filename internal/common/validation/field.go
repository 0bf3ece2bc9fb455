package validation

import (
	"regexp"
	"strings"
)

// FieldType is the declared shape of a field after coercion.
type FieldType string

const (
	TypeString      FieldType = "string"
	TypeNumber      FieldType = "number"
	TypeBoolean     FieldType = "boolean"
	TypeEnum        FieldType = "enum"
	TypeStringArray FieldType = "array-of-string"
	TypeDate        FieldType = "date"
	TypeFile        FieldType = "file"
)

// Constraint names, used as keys for custom messages.
const (
	ConstraintRequired = "required"
	ConstraintType     = "type"
	ConstraintLength   = "length"
	ConstraintRange    = "range"
	ConstraintPattern  = "pattern"
	ConstraintEnum     = "enum"
	ConstraintItems    = "items"
	ConstraintMIME     = "mime"
	ConstraintSize     = "size"
	ConstraintPast     = "past"
)

// Record is a plain field name to value map, before or after normalization.
type Record map[string]interface{}

// Refinement is a named predicate that runs after every constraint of its
// field has passed. value is the coerced, not yet transformed, value.
type Refinement struct {
	Name    string
	Check   func(value interface{}, rec Record) bool
	Message string
}

// Transform normalizes an already valid value. Transforms must be idempotent.
type Transform func(value interface{}) interface{}

// FieldSpec declares one form field. Build it with the constructors below
// and the chainable setters; the exported fields are read by exporters and
// renderers.
type FieldSpec struct {
	Name        string
	Label       string
	Type        FieldType
	Required    bool
	MinLength   int
	MaxLength   int
	Min         *float64
	Max         *float64
	Integer     bool
	Pattern     *regexp.Regexp
	Enum        []string
	MinItems    int
	ItemEnum    []string
	MaxBytes    int64
	MIMETypes   []string
	FutureOnly  bool
	Refinements []Refinement
	Transform   Transform
	Messages    map[string]string
}

func newField(name string, t FieldType) *FieldSpec {
	return &FieldSpec{Name: name, Label: humanize(name), Type: t}
}

// String declares a free text field, trimmed on normalization.
func String(name string) *FieldSpec {
	f := newField(name, TypeString)
	f.Transform = Trim
	return f
}

// Email declares a text field checked with IsPlausibleEmail and lowercased.
func Email(name string) *FieldSpec {
	f := newField(name, TypeString)
	f.Label = "Email"
	f.MaxLength = 254
	f.Transform = TrimLower
	return f.Refine(Refinement{
		Name:    "plausibleEmail",
		Check:   func(v interface{}, _ Record) bool { s, _ := v.(string); return IsPlausibleEmail(s) },
		Message: "Please enter a valid email address",
	})
}

// Phone declares a text field checked with IsPlausiblePhone. Whitespace is
// removed on normalization.
func Phone(name string) *FieldSpec {
	f := newField(name, TypeString)
	f.Label = "Phone"
	f.MaxLength = 25
	f.Transform = StripSpaces
	return f.Refine(Refinement{
		Name:    "plausiblePhone",
		Check:   func(v interface{}, _ Record) bool { s, _ := v.(string); return IsPlausiblePhone(s) },
		Message: "Please enter a valid phone number",
	})
}

// PersonName declares a text field restricted to IsPersonName.
func PersonName(name string) *FieldSpec {
	f := String(name)
	return f.Refine(Refinement{
		Name:    "personName",
		Check:   func(v interface{}, _ Record) bool { s, _ := v.(string); return IsPersonName(s) },
		Message: "Name can only contain letters, spaces, hyphens, apostrophes and periods",
	})
}

// Number declares a numeric field; strings are coerced to float64.
func Number(name string) *FieldSpec {
	return newField(name, TypeNumber)
}

// Boolean declares a checkbox style field; strings are coerced to bool.
func Boolean(name string) *FieldSpec {
	return newField(name, TypeBoolean)
}

// Enum declares a field whose value must be one of members.
func Enum(name string, members ...string) *FieldSpec {
	f := newField(name, TypeEnum)
	f.Enum = members
	f.Transform = Trim
	return f
}

// StringArray declares a field transported as a JSON array inside a string.
func StringArray(name string) *FieldSpec {
	f := newField(name, TypeStringArray)
	f.MinItems = 1
	return f
}

// Date declares a YYYY-MM-DD calendar date field.
func Date(name string) *FieldSpec {
	return newField(name, TypeDate)
}

// File declares an uploaded file field.
func File(name string) *FieldSpec {
	return newField(name, TypeFile)
}

// Labeled sets the human label used in messages and notifications.
func (f *FieldSpec) Labeled(label string) *FieldSpec {
	f.Label = label
	return f
}

// IsRequired marks the field as required.
func (f *FieldSpec) IsRequired() *FieldSpec {
	f.Required = true
	return f
}

// Len bounds the rune length of a text value. max <= 0 means unbounded.
func (f *FieldSpec) Len(min, max int) *FieldSpec {
	f.MinLength, f.MaxLength = min, max
	return f
}

// Between bounds a numeric value inclusively.
func (f *FieldSpec) Between(min, max float64) *FieldSpec {
	f.Min, f.Max = &min, &max
	return f
}

func (f *FieldSpec) AtLeast(min float64) *FieldSpec {
	f.Min = &min
	return f
}

func (f *FieldSpec) WholeNumber() *FieldSpec {
	f.Integer = true
	return f
}

// Matches adds a regex constraint with its message.
func (f *FieldSpec) Matches(re *regexp.Regexp, message string) *FieldSpec {
	f.Pattern = re
	return f.Msg(ConstraintPattern, message)
}

// Items restricts the members of a StringArray field.
func (f *FieldSpec) Items(members ...string) *FieldSpec {
	f.ItemEnum = members
	return f
}

// MaxSize sets the file size ceiling in bytes.
func (f *FieldSpec) MaxSize(bytes int64) *FieldSpec {
	f.MaxBytes = bytes
	return f
}

// Accept sets the file MIME allow-list.
func (f *FieldSpec) Accept(mimeTypes ...string) *FieldSpec {
	f.MIMETypes = mimeTypes
	return f
}

// NotInPast rejects dates before today; today itself is accepted.
func (f *FieldSpec) NotInPast() *FieldSpec {
	f.FutureOnly = true
	return f
}

func (f *FieldSpec) Refine(r Refinement) *FieldSpec {
	f.Refinements = append(f.Refinements, r)
	return f
}

// MustBeTrue is the consent checkbox refinement.
func (f *FieldSpec) MustBeTrue(message string) *FieldSpec {
	return f.Refine(Refinement{
		Name:    "mustBeTrue",
		Check:   func(v interface{}, _ Record) bool { b, ok := v.(bool); return ok && b },
		Message: message,
	})
}

// MustEqual requires an exact value, e.g. a "yes" consent enum.
func (f *FieldSpec) MustEqual(want string, message string) *FieldSpec {
	return f.Refine(Refinement{
		Name:    "mustEqual",
		Check:   func(v interface{}, _ Record) bool { s, ok := v.(string); return ok && s == want },
		Message: message,
	})
}

func (f *FieldSpec) Then(t Transform) *FieldSpec {
	f.Transform = t
	return f
}

// Msg overrides the message for one constraint.
func (f *FieldSpec) Msg(constraint, message string) *FieldSpec {
	if f.Messages == nil {
		f.Messages = map[string]string{}
	}
	f.Messages[constraint] = message
	return f
}

// Trim is the default text transform.
func Trim(v interface{}) interface{} {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return v
}

// TrimLower trims and case-folds.
func TrimLower(v interface{}) interface{} {
	if s, ok := v.(string); ok {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return v
}

// StripSpaces removes all whitespace.
func StripSpaces(v interface{}) interface{} {
	if s, ok := v.(string); ok {
		return strings.Join(strings.Fields(s), "")
	}
	return v
}

// humanize turns "pmdcCertificatePdf" into "Pmdc certificate pdf".
func humanize(name string) string {
	var b strings.Builder
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		if i == 0 && r >= 'a' && r <= 'z' {
			b.WriteRune(r - ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
