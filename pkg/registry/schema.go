// pkg/registry/schema.go
package registry

// FormRegistry describes every submittable form: where it is posted, what it
// accepts and which error codes it can return.
type FormRegistry struct {
	Version     string `json:"version" yaml:"version"`
	LastUpdated string `json:"lastUpdated" yaml:"lastUpdated"`
	Forms       []Form `json:"forms" yaml:"forms"`
}

type Form struct {
	ID          string                 `json:"id" yaml:"id"`
	DisplayName string                 `json:"displayName" yaml:"displayName"`
	Category    string                 `json:"category" yaml:"category"`
	Endpoint    string                 `json:"endpoint" yaml:"endpoint"`
	IDPrefix    string                 `json:"idPrefix,omitempty" yaml:"idPrefix,omitempty"`
	Urgent      bool                   `json:"urgent" yaml:"urgent"`
	Encoding    string                 `json:"encoding" yaml:"encoding"`
	InputSchema map[string]interface{} `json:"inputSchema" yaml:"inputSchema"`
	Files       []File                 `json:"files,omitempty" yaml:"files,omitempty"`
	Sections    []Section              `json:"sections" yaml:"sections"`
	ErrorCodes  []string               `json:"errorCodes" yaml:"errorCodes"`
}

type File struct {
	Field     string   `json:"field" yaml:"field"`
	Label     string   `json:"label" yaml:"label"`
	Required  bool     `json:"required" yaml:"required"`
	MaxBytes  int64    `json:"maxBytes" yaml:"maxBytes"`
	MIMETypes []string `json:"mimeTypes" yaml:"mimeTypes"`
}

type Section struct {
	Title  string   `json:"title" yaml:"title"`
	Fields []string `json:"fields" yaml:"fields"`
}
