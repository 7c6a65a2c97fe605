package formpush

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

var ErrFormNotFound = errors.New("form not found")

// Document is the page hosting the forms a formPush job fills in. The
// renderer provides it; MemoryDocument serves tests and headless runs.
type Document interface {
	Form(ctx context.Context, selector string) (Form, error)
}

// Form is one located form element.
type Form interface {
	SetField(name string, value any) error
	Fields() map[string]any
	// Action and Method describe where an ajax submission goes.
	Action() string
	Method() string
	Submit(ctx context.Context) error
}

// MemoryDocument resolves selectors against registered forms.
type MemoryDocument struct {
	mu    sync.RWMutex
	forms map[string]*MemoryForm
}

func NewMemoryDocument() *MemoryDocument {
	return &MemoryDocument{forms: make(map[string]*MemoryForm)}
}

// Add registers form under selector, replacing any previous one.
func (d *MemoryDocument) Add(selector string, form *MemoryForm) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forms[selector] = form
}

func (d *MemoryDocument) Form(ctx context.Context, selector string) (Form, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	form, ok := d.forms[selector]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFormNotFound, selector)
	}
	return form, nil
}

// MemoryForm records field writes and submissions.
type MemoryForm struct {
	action string
	method string

	mu          sync.Mutex
	fields      map[string]any
	submissions []map[string]any
}

func NewMemoryForm(action, method string) *MemoryForm {
	if method == "" {
		method = http.MethodPost
	}
	return &MemoryForm{action: action, method: method, fields: make(map[string]any)}
}

func (f *MemoryForm) SetField(name string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields[name] = value
	return nil
}

func (f *MemoryForm) Fields() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]any, len(f.fields))
	for k, v := range f.fields {
		out[k] = v
	}
	return out
}

func (f *MemoryForm) Action() string { return f.action }

func (f *MemoryForm) Method() string { return f.method }

func (f *MemoryForm) Submit(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := make(map[string]any, len(f.fields))
	for k, v := range f.fields {
		snapshot[k] = v
	}
	f.submissions = append(f.submissions, snapshot)
	return nil
}

// Submissions returns the field snapshots taken at each Submit.
func (f *MemoryForm) Submissions() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.submissions...)
}
