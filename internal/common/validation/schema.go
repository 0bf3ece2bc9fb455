package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Error codes attached to ValidationError.Code.
const (
	CodeRequired        = "REQUIRED_FIELD_MISSING"
	CodeInvalidType     = "INVALID_TYPE"
	CodeMinLength       = "MIN_LENGTH_VIOLATION"
	CodeMaxLength       = "MAX_LENGTH_VIOLATION"
	CodeOutOfRange      = "OUT_OF_RANGE"
	CodePatternMismatch = "PATTERN_MISMATCH"
	CodeInvalidEnum     = "INVALID_ENUM_VALUE"
	CodeInvalidDate     = "INVALID_DATE"
	CodeDateInPast      = "DATE_IN_PAST"
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeInvalidFileType = "INVALID_FILE_TYPE"
	CodeRefinement      = "REFINEMENT_FAILED"
)

// DateLayout is the wire format of date fields.
const DateLayout = "2006-01-02"

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Data   Record            `json:"data,omitempty"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// CrossFieldRule runs after every field has been checked, against the
// normalized data. It only reports when Field itself has no error yet.
type CrossFieldRule struct {
	Field   string
	Check   func(data Record) bool
	Message string
}

// FormSchema is an ordered set of FieldSpecs defining one submittable form.
type FormSchema struct {
	Name   string
	Fields []*FieldSpec
	Rules  []CrossFieldRule
	index  map[string]*FieldSpec
}

// NewSchema builds a schema. Field names must be unique.
func NewSchema(name string, fields ...*FieldSpec) *FormSchema {
	s := &FormSchema{Name: name, Fields: fields, index: make(map[string]*FieldSpec, len(fields))}
	for _, f := range fields {
		if _, dup := s.index[f.Name]; dup {
			panic(fmt.Sprintf("validation: duplicate field %q in schema %q", f.Name, name))
		}
		s.index[f.Name] = f
	}
	return s
}

// WithRule appends a cross-field rule.
func (s *FormSchema) WithRule(r CrossFieldRule) *FormSchema {
	s.Rules = append(s.Rules, r)
	return s
}

// Field returns the spec for name.
func (s *FormSchema) Field(name string) (*FieldSpec, bool) {
	f, ok := s.index[name]
	return f, ok
}

// HasFiles reports whether any field is a file.
func (s *FormSchema) HasFiles() bool {
	return slices.ContainsFunc(s.Fields, func(f *FieldSpec) bool { return f.Type == TypeFile })
}

// FileFields lists the file fields in declaration order.
func (s *FormSchema) FileFields() []*FieldSpec {
	var out []*FieldSpec
	for _, f := range s.Fields {
		if f.Type == TypeFile {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks every field, files included, against the current time.
func (s *FormSchema) Validate(input Record) *ValidationResult {
	return s.ValidateAt(input, time.Now())
}

// ValidateAt checks every field using now as "today" for date rules.
func (s *FormSchema) ValidateAt(input Record, now time.Time) *ValidationResult {
	return s.run(input, now, func(*FieldSpec) bool { return true })
}

// ValidateFields checks the non-file fields only.
func (s *FormSchema) ValidateFields(input Record, now time.Time) *ValidationResult {
	return s.run(input, now, func(f *FieldSpec) bool { return f.Type != TypeFile })
}

// ValidateFiles checks the file fields only. Each value must be a *FileValue.
func (s *FormSchema) ValidateFiles(files map[string]*FileValue) *ValidationResult {
	input := make(Record, len(files))
	for k, v := range files {
		if v != nil {
			input[k] = v
		}
	}
	return s.run(input, time.Now(), func(f *FieldSpec) bool { return f.Type == TypeFile })
}

func (s *FormSchema) run(input Record, now time.Time, include func(*FieldSpec) bool) *ValidationResult {
	result := &ValidationResult{Data: Record{}}
	failed := map[string]bool{}

	for _, f := range s.Fields {
		if !include(f) {
			continue
		}
		value, present, verr := s.checkField(f, input, now)
		if verr != nil {
			result.Errors = append(result.Errors, *verr)
			failed[f.Name] = true
			continue
		}
		if !present {
			continue
		}
		if f.Transform != nil {
			value = f.Transform(value)
		}
		result.Data[f.Name] = value
	}

	for _, r := range s.Rules {
		spec, ok := s.index[r.Field]
		if !ok || !include(spec) || failed[r.Field] {
			continue
		}
		if !r.Check(result.Data) {
			result.Errors = append(result.Errors, ValidationError{Field: r.Field, Message: r.Message, Code: CodeRefinement})
			failed[r.Field] = true
		}
	}

	result.Valid = len(result.Errors) == 0
	if !result.Valid {
		result.Data = nil
	}
	return result
}

// checkField runs presence, coercion, bounds, pattern, kind specific checks
// and refinements, stopping at the first failure.
func (s *FormSchema) checkField(f *FieldSpec, input Record, now time.Time) (interface{}, bool, *ValidationError) {
	fail := func(constraint, code, fallback string) (interface{}, bool, *ValidationError) {
		msg := fallback
		if custom, ok := f.Messages[constraint]; ok {
			msg = custom
		}
		return nil, false, &ValidationError{Field: f.Name, Message: msg, Code: code}
	}

	raw, ok := input[f.Name]
	if !ok || isEmpty(raw) {
		if f.Required {
			return fail(ConstraintRequired, CodeRequired, f.Label+" is required")
		}
		return nil, false, nil
	}

	switch f.Type {
	case TypeString, TypeEnum:
		str, ok := raw.(string)
		if !ok {
			return fail(ConstraintType, CodeInvalidType, f.Label+" must be text")
		}
		str = strings.TrimSpace(str)
		if f.MinLength > 0 && !LengthBetween(str, f.MinLength, 0) {
			return fail(ConstraintLength, CodeMinLength, fmt.Sprintf("%s must be at least %d characters", f.Label, f.MinLength))
		}
		if f.MaxLength > 0 && !LengthBetween(str, 0, f.MaxLength) {
			return fail(ConstraintLength, CodeMaxLength, fmt.Sprintf("%s must be at most %d characters", f.Label, f.MaxLength))
		}
		if f.Pattern != nil && !f.Pattern.MatchString(str) {
			return fail(ConstraintPattern, CodePatternMismatch, f.Label+" has an invalid format")
		}
		if f.Type == TypeEnum && !slices.Contains(f.Enum, str) {
			return fail(ConstraintEnum, CodeInvalidEnum, fmt.Sprintf("%s must be one of: %s", f.Label, strings.Join(f.Enum, ", ")))
		}
		raw = str

	case TypeNumber:
		n, ok := coerceNumber(raw)
		if !ok {
			return fail(ConstraintType, CodeInvalidType, f.Label+" must be a number")
		}
		if f.Integer && n != math.Trunc(n) {
			return fail(ConstraintType, CodeInvalidType, f.Label+" must be a whole number")
		}
		if !InRange(n, f.Min, f.Max) {
			return fail(ConstraintRange, CodeOutOfRange, rangeMessage(f))
		}
		raw = n

	case TypeBoolean:
		b, ok := coerceBool(raw)
		if !ok {
			return fail(ConstraintType, CodeInvalidType, f.Label+" must be true or false")
		}
		raw = b

	case TypeStringArray:
		items, err := coerceStringArray(raw)
		if err != nil {
			return fail(ConstraintType, CodeInvalidType, f.Label+" must be a list of values")
		}
		if len(items) == 0 && !f.Required {
			return nil, false, nil
		}
		if len(items) < f.MinItems {
			return fail(ConstraintLength, CodeMinLength, fmt.Sprintf("Select at least %d %s", f.MinItems, strings.ToLower(f.Label)))
		}
		for _, it := range items {
			if len(f.ItemEnum) > 0 && !slices.Contains(f.ItemEnum, it) {
				return fail(ConstraintItems, CodeInvalidEnum, fmt.Sprintf("%s contains an unknown value: %s", f.Label, it))
			}
		}
		raw = items

	case TypeDate:
		d, ok := coerceDate(raw)
		if !ok {
			return fail(ConstraintType, CodeInvalidDate, f.Label+" must be a valid date (YYYY-MM-DD)")
		}
		if f.FutureOnly && d.Before(today(now)) {
			return fail(ConstraintPast, CodeDateInPast, f.Label+" cannot be in the past")
		}
		raw = d.Format(DateLayout)

	case TypeFile:
		fv, ok := asFile(raw)
		if !ok {
			return fail(ConstraintType, CodeInvalidType, f.Label+" must be an uploaded file")
		}
		if fv.Size <= 0 {
			return fail(ConstraintRequired, CodeRequired, f.Label+" is empty")
		}
		if len(f.MIMETypes) > 0 && !slices.Contains(f.MIMETypes, fv.MediaType()) {
			return fail(ConstraintMIME, CodeInvalidFileType, fmt.Sprintf("%s must be one of: %s", f.Label, describeTypes(f.MIMETypes)))
		}
		if f.MaxBytes > 0 && fv.Size > f.MaxBytes {
			return fail(ConstraintSize, CodeFileTooLarge, fmt.Sprintf("%s must be %s or smaller", f.Label, formatBytes(f.MaxBytes)))
		}
		raw = fv
	}

	for _, r := range f.Refinements {
		if !r.Check(raw, input) {
			return nil, false, &ValidationError{Field: f.Name, Message: r.Message, Code: CodeRefinement}
		}
	}
	return raw, true, nil
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case *FileValue:
		return t == nil
	}
	return false
}

func coerceNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(n), ",", "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func coerceBool(v interface{}) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "on", "1", "yes":
			return true, true
		case "false", "off", "0", "no":
			return false, true
		}
	}
	return false, false
}

func coerceStringArray(v interface{}) ([]string, error) {
	switch a := v.(type) {
	case []string:
		return a, nil
	case []interface{}:
		out := make([]string, 0, len(a))
		for _, it := range a {
			s, ok := it.(string)
			if !ok {
				return nil, fmt.Errorf("item %v is not a string", it)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		var decoded []interface{}
		if err := json.Unmarshal([]byte(a), &decoded); err != nil {
			return nil, err
		}
		return coerceStringArray(decoded)
	}
	return nil, fmt.Errorf("unsupported value %T", v)
}

func coerceDate(v interface{}) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), true
	case string:
		s := strings.TrimSpace(d)
		if t, err := time.Parse(DateLayout, s); err == nil {
			return t, true
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// today truncates now to a UTC midnight carrying now's calendar date.
func today(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func rangeMessage(f *FieldSpec) string {
	switch {
	case f.Min != nil && f.Max != nil:
		return fmt.Sprintf("%s must be between %s and %s", f.Label, fmtNum(*f.Min), fmtNum(*f.Max))
	case f.Min != nil:
		return fmt.Sprintf("%s must be at least %s", f.Label, fmtNum(*f.Min))
	default:
		return fmt.Sprintf("%s must be at most %s", f.Label, fmtNum(*f.Max))
	}
}

func fmtNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// HasErrors checks if validation result has any errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// GetErrorsForField returns all errors for a specific field
func (vr *ValidationResult) GetErrorsForField(field string) []ValidationError {
	var fieldErrors []ValidationError
	for _, err := range vr.Errors {
		if err.Field == field {
			fieldErrors = append(fieldErrors, err)
		}
	}
	return fieldErrors
}

// FieldErrors maps each failing field to its message.
func (vr *ValidationResult) FieldErrors() map[string]string {
	out := make(map[string]string, len(vr.Errors))
	for _, e := range vr.Errors {
		if _, seen := out[e.Field]; !seen {
			out[e.Field] = e.Message
		}
	}
	return out
}

// Merge appends other's errors and data. The merged result is valid only if
// both were.
func (vr *ValidationResult) Merge(other *ValidationResult) *ValidationResult {
	merged := &ValidationResult{
		Valid:  vr.Valid && other.Valid,
		Errors: append(append([]ValidationError{}, vr.Errors...), other.Errors...),
	}
	if merged.Valid {
		merged.Data = Record{}
		for k, v := range vr.Data {
			merged.Data[k] = v
		}
		for k, v := range other.Data {
			merged.Data[k] = v
		}
	}
	return merged
}
