// Package client binds a shared form definition to user input and drives one
// submission at a time against the forms server.
package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"clinic-forms/internal/common/logger"
	"clinic-forms/internal/common/validation"
	"clinic-forms/internal/forms"
	"clinic-forms/internal/models"
)

type State int

const (
	Idle State = iota
	Validating
	Submitting
	Success
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Submitting:
		return "submitting"
	case Success:
		return "success"
	case Error:
		return "error"
	}
	return "unknown"
}

const (
	DefaultResetDelay = 3 * time.Second
	MinResetDelay     = 2 * time.Second
	MaxResetDelay     = 5 * time.Second

	MessageSent         = "Thank you! Your submission has been received."
	MessageFailed       = "Something went wrong. Please try again."
	MessageFixFields    = "Please correct the highlighted fields and try again."
	MessageNotConfirmed = "Your submission was received, but our team may not have been notified yet."
)

var (
	ErrSubmitInFlight = errors.New("a submission is already in progress")
	ErrNotReady       = errors.New("form is showing the previous result")
	ErrInvalid        = errors.New("form has invalid fields")
)

// Transport sends an encoded submission. *http.Client from
// internal/common/http satisfies it.
type Transport interface {
	PostForm(ctx context.Context, path, contentType string, body io.Reader) (int, *models.SubmissionResponse, error)
}

// Snapshot is the observable state of a controller.
type Snapshot struct {
	State         State
	ID            string
	ApplicationID string
	EmailStatus   string
	Message       string
}

type Options struct {
	// ResetDelay is clamped to [MinResetDelay, MaxResetDelay]; zero means
	// DefaultResetDelay.
	ResetDelay time.Duration
	OnChange   func(Snapshot)
	Logger     logger.Logger
	Now        func() time.Time
}

// Controller owns the submission state of one form instance. It is safe for
// concurrent use; OnChange is always called without the lock held.
type Controller struct {
	def       *forms.Definition
	transport Transport
	onChange  func(Snapshot)
	logger    logger.Logger
	now       func() time.Time

	mu           sync.Mutex
	values       validation.Record
	files        map[string]*validation.FileValue
	touched      map[string]bool
	result       *validation.ValidationResult
	serverErrors map[string]string
	snap         Snapshot
	generation   uint64
	resetDelay   time.Duration
	resetTimer   *time.Timer
}

func NewController(def *forms.Definition, transport Transport, opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	c := &Controller{
		def:        def,
		transport:  transport,
		onChange:   opts.OnChange,
		logger:     log.WithFields(map[string]interface{}{"component": "client", "form": def.Name}),
		now:        now,
		resetDelay: ClampResetDelay(opts.ResetDelay),
	}
	c.clear()
	return c
}

// ClampResetDelay bounds d to the display window.
func ClampResetDelay(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultResetDelay
	case d < MinResetDelay:
		return MinResetDelay
	case d > MaxResetDelay:
		return MaxResetDelay
	}
	return d
}

func (c *Controller) clear() {
	c.values = validation.Record{}
	c.files = map[string]*validation.FileValue{}
	c.touched = map[string]bool{}
	c.serverErrors = nil
	c.result = c.validate()
}

func (c *Controller) validate() *validation.ValidationResult {
	input := make(validation.Record, len(c.values)+len(c.files))
	for k, v := range c.values {
		input[k] = v
	}
	for k, f := range c.files {
		input[k] = f
	}
	return c.def.Schema.ValidateAt(input, c.now())
}

// Set updates a field and re-validates the whole form.
func (c *Controller) Set(field string, value interface{}) {
	c.update(field, func() {
		if value == nil {
			delete(c.values, field)
		} else {
			c.values[field] = value
		}
	})
}

// SetFile attaches or, with nil, removes a file.
func (c *Controller) SetFile(field string, file *validation.FileValue) {
	c.update(field, func() {
		if file == nil {
			delete(c.files, field)
		} else {
			c.files[field] = file
		}
	})
}

func (c *Controller) update(field string, apply func()) {
	var notes []Snapshot

	c.mu.Lock()
	apply()
	c.touched[field] = true
	delete(c.serverErrors, field)

	live := c.snap.State == Idle || c.snap.State == Validating
	if live {
		c.snap = Snapshot{State: Validating}
		notes = append(notes, c.snap)
	}
	c.result = c.validate()
	if live {
		c.snap = Snapshot{State: Idle}
		notes = append(notes, c.snap)
	}
	c.mu.Unlock()

	c.notify(notes...)
}

// Values returns a copy of the raw field values.
func (c *Controller) Values() validation.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(validation.Record, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// FieldErrors returns the first error of every touched field, plus any field
// errors the server reported on the last attempt.
func (c *Controller) FieldErrors() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]string{}
	for _, e := range c.result.Errors {
		if c.touched[e.Field] {
			if _, seen := out[e.Field]; !seen {
				out[e.Field] = e.Message
			}
		}
	}
	for f, msg := range c.serverErrors {
		if _, seen := out[f]; !seen {
			out[f] = msg
		}
	}
	return out
}

// CanSubmit reports whether Submit would send a request.
func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.State == Idle && c.result.Valid
}

func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Submit sends the normalized data once. It blocks for the round trip and
// returns the server response when one was decoded.
func (c *Controller) Submit(ctx context.Context) (*models.SubmissionResponse, error) {
	c.mu.Lock()
	switch {
	case c.snap.State == Submitting:
		c.mu.Unlock()
		return nil, ErrSubmitInFlight
	case c.snap.State != Idle:
		c.mu.Unlock()
		return nil, ErrNotReady
	case !c.result.Valid:
		for _, f := range c.def.Schema.Fields {
			c.touched[f.Name] = true
		}
		c.mu.Unlock()
		return nil, ErrInvalid
	}

	body, contentType, err := encode(c.def, c.result.Data)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.generation++
	gen := c.generation
	c.snap = Snapshot{State: Submitting}
	submitting := c.snap
	c.mu.Unlock()
	c.notify(submitting)

	status, resp, err := c.transport.PostForm(ctx, "/api/"+c.def.Name, contentType, bytes.NewReader(body))

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return resp, err
	}
	switch {
	case err != nil:
		c.logger.Warn("submission request failed", map[string]interface{}{"error": err.Error(), "status": status})
		c.snap = Snapshot{State: Error, Message: MessageFailed}
	case status < http.StatusOK || status >= http.StatusMultipleChoices || !resp.Success:
		c.snap = Snapshot{State: Error, Message: MessageFailed}
		if len(resp.Errors) > 0 {
			c.serverErrors = make(map[string]string, len(resp.Errors))
			for _, fe := range resp.Errors {
				c.serverErrors[fe.Field] = fe.Message
				c.touched[fe.Field] = true
			}
			c.snap.Message = MessageFixFields
		}
		c.logger.Info("submission rejected", map[string]interface{}{"status": status, "fieldErrors": len(resp.Errors)})
	default:
		c.snap = Snapshot{
			State:         Success,
			ID:            resp.ID,
			ApplicationID: resp.ApplicationID,
			EmailStatus:   resp.EmailStatus,
			Message:       MessageSent,
		}
		if resp.Degraded() {
			c.snap.Message = MessageNotConfirmed
		}
		c.clear()
	}
	done := c.snap
	c.scheduleReset(gen)
	c.mu.Unlock()

	c.notify(done)
	return resp, err
}

// scheduleReset returns to Idle after the display delay unless a newer
// submission or a Reset superseded gen. Callers hold mu.
func (c *Controller) scheduleReset(gen uint64) {
	if c.resetTimer != nil {
		c.resetTimer.Stop()
	}
	c.resetTimer = time.AfterFunc(c.resetDelay, func() {
		c.mu.Lock()
		if gen != c.generation || (c.snap.State != Success && c.snap.State != Error) {
			c.mu.Unlock()
			return
		}
		c.snap = Snapshot{State: Idle}
		idle := c.snap
		c.mu.Unlock()
		c.notify(idle)
	})
}

// Reset discards values and any displayed result immediately.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.generation++
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	c.clear()
	c.snap = Snapshot{State: Idle}
	idle := c.snap
	c.mu.Unlock()
	c.notify(idle)
}

// Close stops the pending reset timer.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resetTimer != nil {
		c.resetTimer.Stop()
	}
}

func (c *Controller) notify(snaps ...Snapshot) {
	if c.onChange == nil {
		return
	}
	for _, s := range snaps {
		c.onChange(s)
	}
}
