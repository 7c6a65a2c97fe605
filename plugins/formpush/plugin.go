package formpush

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"

	"github.com/botui/chatflow/runtime/plugin"
)

var (
	_ plugin.JobRunner   = (*Plugin)(nil)
	_ plugin.Initializer = (*Plugin)(nil)
	_ plugin.Shutdowner  = (*Plugin)(nil)
)

// Config holds the formPush job configuration with declarative tags
type Config struct {
	Timeout     time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
	MaxRetries  int           `yaml:"max_retries" default:"0" validate:"gte=0,lte=10"`
	RetryWaitMS int           `yaml:"retry_wait_ms" default:"100" validate:"gte=0,lte=10000"`
	Debug       bool          `yaml:"debug" default:"false"`
}

// Response is what an onSubmit script sees as response.
type Response struct {
	Status     string `json:"status"`
	StatusCode int    `json:"status_code"`
	IsError    bool   `json:"is_error"`
	Body       any    `json:"body"`
}

// Plugin fills a form of the Document from the collected values and submits
// it, either through the form itself or, for ajax jobs, as an HTTP request
// followed by the job's onSubmit script.
type Plugin struct {
	Config  Config
	l       *slog.Logger
	doc     Document
	scripts plugin.ScriptEvaluator
	client  *resty.Client
}

func New(l *slog.Logger, doc Document, scripts plugin.ScriptEvaluator, config Config) *Plugin {
	if l == nil {
		l = slog.Default()
	}
	return &Plugin{Config: config, l: l, doc: doc, scripts: scripts}
}

func (p *Plugin) Initialize(ctx context.Context) error {
	if p.doc == nil {
		return errors.New("formpush: no document configured")
	}
	p.client = resty.New().
		SetTimeout(p.Config.Timeout).
		SetRetryCount(p.Config.MaxRetries).
		SetRetryWaitTime(time.Duration(p.Config.RetryWaitMS) * time.Millisecond).
		SetDebug(p.Config.Debug)
	return nil
}

func (p *Plugin) Run(exec *plugin.Execution, job plugin.Job) error {
	form, err := p.doc.Form(exec, job.FormSelector)
	if err != nil {
		jobErr := plugin.NewJobError(fmt.Errorf("locating form %q: %w", job.FormSelector, err)).
			WithMetadata("selector", job.FormSelector)
		if errors.Is(err, ErrFormNotFound) {
			// The renderer may not have mounted the form yet.
			return jobErr.WithType("not_found").WithRetryHint(true)
		}
		return jobErr.WithType("transient")
	}

	for _, m := range job.DataMapper {
		value, err := p.fieldValue(exec, m)
		if err != nil {
			return plugin.NewJobError(fmt.Errorf("mapping field %q: %w", m.To, err)).
				WithType("permanent").
				WithRetryHint(false).
				WithMetadata("field", m.To)
		}
		if err := form.SetField(m.To, value); err != nil {
			return plugin.NewJobError(fmt.Errorf("setting field %q: %w", m.To, err)).
				WithMetadata("field", m.To)
		}
	}

	if !job.Ajax {
		if err := form.Submit(exec); err != nil {
			return plugin.NewJobError(fmt.Errorf("submitting form %q: %w", job.FormSelector, err)).
				WithType("transient")
		}
		p.l.InfoContext(exec, fmt.Sprintf("Form submitted for step: %s", exec.Step.ID),
			"selector", job.FormSelector,
			"fields", len(job.DataMapper))
		return nil
	}

	return p.submitAjax(exec, form, job)
}

// fieldValue resolves one mapping: the custom script result, the value
// collected under From, or the value at the dotted path From.
func (p *Plugin) fieldValue(exec *plugin.Execution, m plugin.FieldMapping) (any, error) {
	if m.Custom {
		if p.scripts == nil {
			return nil, errors.New("no script evaluator for custom value")
		}
		return p.scripts.Eval(exec, m.CustomValueScript, map[string]any{
			"values": map[string]any(exec.Values.Clone()),
		})
	}

	if v, ok := exec.Values[m.From]; ok {
		return v, nil
	}
	container := gabs.Wrap(map[string]any(exec.Values))
	if container.ExistsP(m.From) {
		return container.Path(m.From).Data(), nil
	}
	return "", nil
}

func (p *Plugin) submitAjax(exec *plugin.Execution, form Form, job plugin.Job) error {
	if p.client == nil {
		return plugin.NewJobError(errors.New("formpush client not initialized")).
			WithType("permanent").
			WithRetryHint(false)
	}
	if form.Action() == "" {
		return plugin.NewJobError(fmt.Errorf("form %q has no action", job.FormSelector)).
			WithType("permanent").
			WithRetryHint(false)
	}

	resp, err := p.client.R().
		SetContext(exec).
		SetFormData(flattenToFormData(form.Fields(), "")).
		Execute(strings.ToUpper(form.Method()), form.Action())
	if err != nil {
		return plugin.NewJobError(fmt.Errorf("ajax submission failed: %w", err)).
			WithType("transient").
			WithMetadata("endpoint", form.Action())
	}

	response := Response{
		Status:     resp.Status(),
		StatusCode: resp.StatusCode(),
		IsError:    resp.IsError(),
		Body:       decodeBody(resp.Body()),
	}
	p.l.InfoContext(exec, fmt.Sprintf("Form posted for step: %s", exec.Step.ID),
		"selector", job.FormSelector,
		"endpoint", form.Action(),
		"status_code", response.StatusCode)

	if job.OnSubmit == "" {
		return nil
	}
	if p.scripts == nil {
		return plugin.NewJobError(errors.New("no script evaluator for onSubmit")).
			WithType("permanent").
			WithRetryHint(false)
	}
	_, err = p.scripts.Eval(exec, job.OnSubmit, map[string]any{
		"values": map[string]any(exec.Values.Clone()),
		"response": map[string]any{
			"status":      response.Status,
			"status_code": response.StatusCode,
			"is_error":    response.IsError,
			"body":        response.Body,
		},
	})
	if err != nil {
		return plugin.NewJobError(fmt.Errorf("onSubmit failed: %w", err)).
			WithType("permanent").
			WithRetryHint(false).
			WithMetadata("status_code", response.StatusCode)
	}
	return nil
}

func (p *Plugin) Shutdown(ctx context.Context) error {
	p.client = nil
	return nil
}

// decodeBody returns the JSON value of body, or body as text when it is not JSON.
func decodeBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	return v
}

// flattenToFormData encodes nested values with bracket keys:
// {"a": {"b": 1}, "c": [x]} becomes a[b]=1 and c[0]=x.
func flattenToFormData(data map[string]any, prefix string) map[string]string {
	result := make(map[string]string)

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		key := k
		if prefix != "" {
			key = fmt.Sprintf("%s[%s]", prefix, k)
		}
		flattenValue(result, key, data[k])
	}
	return result
}

func flattenValue(result map[string]string, key string, value any) {
	switch v := value.(type) {
	case map[string]any:
		for k, s := range flattenToFormData(v, key) {
			result[k] = s
		}
	case []any:
		for i, item := range v {
			flattenValue(result, fmt.Sprintf("%s[%d]", key, i), item)
		}
	case []string:
		for i, item := range v {
			result[fmt.Sprintf("%s[%d]", key, i)] = item
		}
	default:
		result[key] = plugin.ToStringValue(v)
	}
}
