package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/botui/chatflow/runtime/plugin"
)

var (
	_ plugin.JobRunner   = (*Plugin)(nil)
	_ plugin.Initializer = (*Plugin)(nil)
	_ plugin.Shutdowner  = (*Plugin)(nil)
)

// Config holds the webhook job configuration with declarative tags
type Config struct {
	Timeout     time.Duration     `yaml:"timeout" default:"30s" validate:"gte=1s"`
	MaxRetries  int               `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
	RetryWaitMS int               `yaml:"retry_wait_ms" default:"100" validate:"gte=0,lte=10000"`
	Method      string            `yaml:"method" default:"POST" validate:"oneof=POST PUT PATCH"`
	Headers     map[string]string `yaml:"headers"`
	Debug       bool              `yaml:"debug" default:"false"`
}

// Payload is the JSON body posted to a webhook endpoint.
type Payload struct {
	Conversation string         `json:"conversation"`
	Step         string         `json:"step"`
	Values       map[string]any `json:"values"`
}

// Plugin delivers the collected values to the job's endpoint.
type Plugin struct {
	Config Config // Exported so the CLI can set it before Initialize
	l      *slog.Logger
	client *resty.Client
}

func New(l *slog.Logger, config Config) *Plugin {
	if l == nil {
		l = slog.Default()
	}
	return &Plugin{Config: config, l: l}
}

// Initialize builds the resty client. Config is validated by the caller.
func (p *Plugin) Initialize(ctx context.Context) error {
	if p.l == nil {
		p.l = slog.Default()
	}
	p.client = resty.New().
		SetTimeout(p.Config.Timeout).
		SetRetryCount(p.Config.MaxRetries).
		SetRetryWaitTime(time.Duration(p.Config.RetryWaitMS) * time.Millisecond).
		SetHeaders(p.Config.Headers).
		SetDebug(p.Config.Debug).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || retryableStatus(r.StatusCode())
		})
	return nil
}

// Run posts the values. A non-2xx answer fails the job; 5xx and 429 are
// retried on the next pass, other statuses are not.
func (p *Plugin) Run(exec *plugin.Execution, job plugin.Job) error {
	if p.client == nil {
		return plugin.NewJobError(fmt.Errorf("webhook client not initialized")).
			WithType("permanent").
			WithRetryHint(false)
	}

	method := p.Config.Method
	if method == "" {
		method = http.MethodPost
	}

	body := Payload{
		Conversation: exec.Conversation,
		Step:         exec.Step.ID,
		Values:       exec.Values,
	}

	errorResponse := map[string]any{}
	resp, err := p.client.R().
		SetContext(exec).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Chatflow-Conversation", exec.Conversation).
		SetHeader("X-Chatflow-Step", exec.Step.ID).
		SetHeader("X-Chatflow-Execution", exec.ID).
		SetBody(body).
		SetError(&errorResponse).
		Execute(method, job.Endpoint)
	if err != nil {
		return plugin.NewJobError(fmt.Errorf("webhook request failed: %w", err)).
			WithType("transient").
			WithRetryHint(true).
			WithMetadata("endpoint", job.Endpoint)
	}

	if resp.IsError() {
		errorType := "permanent"
		if retryableStatus(resp.StatusCode()) {
			errorType = "transient"
		}
		return plugin.NewJobError(fmt.Errorf("webhook returned %s", resp.Status())).
			WithType(errorType).
			WithRetryHint(retryableStatus(resp.StatusCode())).
			WithMetadata("status_code", resp.StatusCode()).
			WithMetadata("endpoint", job.Endpoint).
			WithMetadata("response", errorResponse)
	}

	p.l.InfoContext(exec, fmt.Sprintf("Webhook delivered for step: %s", exec.Step.ID),
		"endpoint", job.Endpoint,
		"status_code", resp.StatusCode(),
		"duration_ms", resp.Time().Milliseconds())
	return nil
}

// Shutdown releases the client.
func (p *Plugin) Shutdown(ctx context.Context) error {
	p.client = nil
	return nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
