package formpush

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/botui/chatflow/runtime"
	"github.com/botui/chatflow/runtime/plugin"
)

type fakeScripts struct {
	mu      sync.Mutex
	calls   []string
	globals []map[string]any
	result  any
	err     error
}

func (f *fakeScripts) Eval(ctx context.Context, code string, globals map[string]any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, code)
	f.globals = append(f.globals, globals)
	return f.result, f.err
}

func newExecution(values runtime.Values) *plugin.Execution {
	step := runtime.Step{ID: "push", Kind: runtime.KindRelayer, Job: &runtime.Job{Kind: runtime.JobFormPush}}
	return runtime.NewExecution(context.Background(), "conv-1", step, values)
}

func newPlugin(t *testing.T, doc Document, scripts plugin.ScriptEvaluator) *Plugin {
	t.Helper()
	p := New(nil, doc, scripts, Config{Timeout: 5 * time.Second})
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return p
}

func TestPluginRun_DirectSubmit(t *testing.T) {
	doc := NewMemoryDocument()
	form := NewMemoryForm("", "")
	doc.Add("#contact", form)
	scripts := &fakeScripts{result: "ANN"}

	job := plugin.Job{
		Kind:         plugin.JobFormPush,
		FormSelector: "#contact",
		DataMapper: []plugin.FieldMapping{
			{From: "mail", To: "email"},
			{From: "address.city", To: "city"},
			{From: "missing", To: "note"},
			{To: "name", Custom: true, CustomValueScript: `values["name"].upper()`},
		},
	}
	values := runtime.Values{
		"mail":    "ann@example.com",
		"name":    "Ann",
		"address": map[string]any{"city": "Lyon"},
	}

	if err := newPlugin(t, doc, scripts).Run(newExecution(values), job); err != nil {
		t.Fatalf("Run: %v", err)
	}

	subs := form.Submissions()
	if len(subs) != 1 {
		t.Fatalf("got %d submissions, want 1", len(subs))
	}
	want := map[string]any{"email": "ann@example.com", "city": "Lyon", "note": "", "name": "ANN"}
	for k, v := range want {
		if subs[0][k] != v {
			t.Errorf("field %q = %v, want %v", k, subs[0][k], v)
		}
	}
	if len(scripts.calls) != 1 || scripts.calls[0] != `values["name"].upper()` {
		t.Errorf("custom script calls = %v", scripts.calls)
	}
	if vals, ok := scripts.globals[0]["values"].(map[string]any); !ok || vals["name"] != "Ann" {
		t.Errorf("custom script globals = %v", scripts.globals[0])
	}
}

func TestPluginRun_FormNotFound(t *testing.T) {
	p := newPlugin(t, NewMemoryDocument(), nil)
	err := p.Run(newExecution(nil), plugin.Job{Kind: plugin.JobFormPush, FormSelector: "#nope"})

	if !errors.Is(err, ErrFormNotFound) {
		t.Fatalf("expected ErrFormNotFound, got %v", err)
	}
	var jobErr *runtime.JobError
	if !errors.As(err, &jobErr) || !jobErr.IsRetryable() {
		t.Errorf("expected retryable job error, got %v", err)
	}
}

func TestPluginRun_CustomScriptFailure(t *testing.T) {
	doc := NewMemoryDocument()
	form := NewMemoryForm("", "")
	doc.Add("#f", form)
	scripts := &fakeScripts{err: errors.New("syntax error")}

	job := plugin.Job{
		Kind:         plugin.JobFormPush,
		FormSelector: "#f",
		DataMapper:   []plugin.FieldMapping{{To: "x", Custom: true, CustomValueScript: "?"}},
	}
	err := newPlugin(t, doc, scripts).Run(newExecution(nil), job)

	var jobErr *runtime.JobError
	if !errors.As(err, &jobErr) {
		t.Fatalf("expected job error, got %v", err)
	}
	if jobErr.IsRetryable() {
		t.Error("a failing custom value script should not be retried")
	}
	if len(form.Submissions()) != 0 {
		t.Error("form was submitted despite the failed mapping")
	}
}

func TestPluginRun_Ajax(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		received = map[string]string{}
		for k := range r.PostForm {
			received[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"id":"lead-7"}`))
	}))
	defer srv.Close()

	doc := NewMemoryDocument()
	form := NewMemoryForm(srv.URL, "post")
	doc.Add("#lead", form)
	scripts := &fakeScripts{}

	job := plugin.Job{
		Kind:         plugin.JobFormPush,
		FormSelector: "#lead",
		Ajax:         true,
		OnSubmit:     `chat_done(response)`,
		DataMapper: []plugin.FieldMapping{
			{From: "mail", To: "email"},
			{From: "tags", To: "tags"},
		},
	}
	values := runtime.Values{"mail": "ann@example.com", "tags": []any{"vip", "new"}}

	if err := newPlugin(t, doc, scripts).Run(newExecution(values), job); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if received["email"] != "ann@example.com" || received["tags[0]"] != "vip" || received["tags[1]"] != "new" {
		t.Errorf("posted form = %v", received)
	}
	if len(form.Submissions()) != 0 {
		t.Error("ajax job should not submit the form element")
	}
	if len(scripts.calls) != 1 {
		t.Fatalf("onSubmit calls = %d, want 1", len(scripts.calls))
	}
	resp, ok := scripts.globals[0]["response"].(map[string]any)
	if !ok {
		t.Fatalf("response global = %v", scripts.globals[0]["response"])
	}
	if resp["status_code"] != http.StatusOK {
		t.Errorf("status_code = %v", resp["status_code"])
	}
	body, ok := resp["body"].(map[string]any)
	if !ok || body["id"] != "lead-7" {
		t.Errorf("body = %v", resp["body"])
	}
}

func TestPluginRun_AjaxWithoutAction(t *testing.T) {
	doc := NewMemoryDocument()
	doc.Add("#f", NewMemoryForm("", ""))

	err := newPlugin(t, doc, nil).Run(newExecution(nil), plugin.Job{Kind: plugin.JobFormPush, FormSelector: "#f", Ajax: true})
	if err == nil {
		t.Fatal("expected error for a form without action")
	}
}

func TestInitializeRequiresDocument(t *testing.T) {
	if err := New(nil, nil, nil, Config{}).Initialize(context.Background()); err == nil {
		t.Fatal("expected error without document")
	}
}

func TestFlattenToFormData(t *testing.T) {
	tests := []struct {
		name     string
		input    map[string]any
		expected map[string]string
	}{
		{
			name:     "simple values",
			input:    map[string]any{"email": "ann@example.com", "age": 31},
			expected: map[string]string{"email": "ann@example.com", "age": "31"},
		},
		{
			name: "nested map",
			input: map[string]any{
				"address": map[string]any{"city": "Lyon", "zip": "69001"},
			},
			expected: map[string]string{"address[city]": "Lyon", "address[zip]": "69001"},
		},
		{
			name:     "array values",
			input:    map[string]any{"tags": []any{"vip", "new"}},
			expected: map[string]string{"tags[0]": "vip", "tags[1]": "new"},
		},
		{
			name: "array of objects",
			input: map[string]any{
				"children": []any{
					map[string]any{"name": "Bo", "age": 4},
					map[string]any{"name": "Li", "age": 2},
				},
			},
			expected: map[string]string{
				"children[0][name]": "Bo",
				"children[0][age]":  "4",
				"children[1][name]": "Li",
				"children[1][age]":  "2",
			},
		},
		{
			name:     "boolean and float",
			input:    map[string]any{"consent": true, "score": 0.15},
			expected: map[string]string{"consent": "true", "score": "0.15"},
		},
		{
			name:     "empty map",
			input:    map[string]any{},
			expected: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := flattenToFormData(tt.input, "")

			if len(result) != len(tt.expected) {
				t.Fatalf("length mismatch: got %d, want %d\ngot: %v\nwant: %v",
					len(result), len(tt.expected), result, tt.expected)
			}
			for key, expectedVal := range tt.expected {
				if gotVal, ok := result[key]; !ok {
					t.Errorf("missing key %q", key)
				} else if gotVal != expectedVal {
					t.Errorf("key %q: got %q, want %q", key, gotVal, expectedVal)
				}
			}
		})
	}
}
