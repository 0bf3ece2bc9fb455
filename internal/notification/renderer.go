// Package notification turns a validated submission into the staff email.
package notification

import (
	"bytes"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strconv"
	"strings"
	texttemplate "text/template"

	"github.com/microcosm-cc/bluemonday"

	"clinic-forms/internal/common/validation"
	"clinic-forms/internal/forms"
	"clinic-forms/internal/models"
)

var (
	ErrMissingReplyTo   = errors.New("submission has no reply-to address")
	ErrNoRecipients     = errors.New("no recipient configured")
	ErrUnvalidatedInput = errors.New("notification requires validated data")
)

// Router resolves the staff mailbox for a form. config.MailConfig satisfies it.
type Router interface {
	RecipientFor(form string) string
}

// Entry is one labelled value. URL is set for uploaded assets.
type Entry struct {
	Label string
	Value string
	URL   string
}

type Section struct {
	Title   string
	Entries []Entry
}

// Message is the rendered notification. Recipients keeps configuration
// order; ReplyTo is always the submitter.
type Message struct {
	Form       string
	Reference  string
	Subject    string
	Recipients []string
	ReplyTo    string
	Sections   []Section
	HTML       string
	Text       string
}

// Renderer builds Messages. It is safe for concurrent use.
type Renderer struct {
	router Router
	policy *bluemonday.Policy
	html   *htmltemplate.Template
	text   *texttemplate.Template
}

func NewRenderer(router Router) *Renderer {
	return &Renderer{
		router: router,
		policy: bluemonday.UGCPolicy(),
		html:   htmltemplate.Must(htmltemplate.New("html").Parse(htmlLayout)),
		text:   texttemplate.Must(texttemplate.New("text").Parse(textLayout)),
	}
}

// Render builds the message for def from the normalized result of a
// successful validation. reference is the application or submission id and
// may be empty.
func (r *Renderer) Render(def *forms.Definition, result *validation.ValidationResult, reference string, assets []models.UploadedAsset) (*Message, error) {
	if result == nil || !result.Valid {
		return nil, ErrUnvalidatedInput
	}
	data := result.Data

	replyTo, _ := data[def.ReplyToField].(string)
	if replyTo == "" {
		return nil, ErrMissingReplyTo
	}
	recipients := splitRecipients(r.router.RecipientFor(def.Name))
	if len(recipients) == 0 {
		return nil, fmt.Errorf("form %s: %w", def.Name, ErrNoRecipients)
	}

	msg := &Message{
		Form:       def.Name,
		Reference:  reference,
		Subject:    def.Subject(data),
		Recipients: recipients,
		ReplyTo:    replyTo,
		Sections:   buildSections(def, data, assets),
	}

	view := struct {
		Title string
		*Message
	}{Title: def.Title, Message: msg}

	var html bytes.Buffer
	if err := r.html.Execute(&html, view); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	msg.HTML = r.policy.Sanitize(html.String())

	var text bytes.Buffer
	if err := r.text.Execute(&text, view); err != nil {
		return nil, fmt.Errorf("render text: %w", err)
	}
	msg.Text = text.String()

	return msg, nil
}

func buildSections(def *forms.Definition, data validation.Record, assets []models.UploadedAsset) []Section {
	byField := make(map[string]models.UploadedAsset, len(assets))
	for _, a := range assets {
		byField[a.FieldName] = a
	}

	var sections []Section
	for _, s := range def.Sections {
		var entries []Entry
		for _, name := range s.Fields {
			label := def.Label(name)
			if a, ok := byField[name]; ok {
				entries = append(entries, Entry{Label: label, Value: assetName(a), URL: a.URL})
				continue
			}
			if v := formatValue(data[name]); v != "" {
				entries = append(entries, Entry{Label: label, Value: v})
			}
		}
		if len(entries) > 0 {
			sections = append(sections, Section{Title: s.Title, Entries: entries})
		}
	}
	return sections
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []string:
		return strings.Join(t, ", ")
	case *validation.FileValue:
		// files without a persisted asset are not rendered
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func assetName(a models.UploadedAsset) string {
	if a.OriginalFilename != "" {
		return a.OriginalFilename
	}
	return a.StorageKey
}

func splitRecipients(s string) []string {
	var out []string
	for _, addr := range strings.Split(s, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

const htmlLayout = `<h2>{{.Title}}</h2>
{{if .Reference}}<p><strong>Reference:</strong> {{.Reference}}</p>
{{end}}{{range .Sections}}<h3>{{.Title}}</h3>
<table>
{{range .Entries}}<tr><th align="left">{{.Label}}</th><td>{{if .URL}}<a href="{{.URL}}">{{.Value}}</a>{{else}}{{.Value}}{{end}}</td></tr>
{{end}}</table>
{{end}}<p>Reply to this email to respond to {{.ReplyTo}} directly.</p>
`

const textLayout = `{{.Title}}
{{if .Reference}}Reference: {{.Reference}}
{{end}}{{range .Sections}}
{{.Title}}
{{range .Entries}}  {{.Label}}: {{.Value}}{{if .URL}} <{{.URL}}>{{end}}
{{end}}{{end}}
Reply to this email to respond to {{.ReplyTo}} directly.
`
