// Package httpaction provides the http.request built-in: a generic HTTP
// call with bounded retry and exponential backoff for transient failures.
package httpaction

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/convoflow/convoflow/runtime"
)

// Options tunes the shared HTTP client.
type Options struct {
	Timeout      time.Duration `yaml:"timeout" default:"20s" validate:"gte=1s"`
	MaxRetries   int           `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
	RetryWaitMS  int           `yaml:"retry_wait_ms" default:"200" validate:"gte=0,lte=10000"`
	RetryMaxWait time.Duration `yaml:"retry_max_wait" default:"5s" validate:"gte=0"`
	Debug        bool          `yaml:"debug" default:"false"`
}

// RequestConfig is the schema of the http.request action.
type RequestConfig struct {
	URL     string            `json:"url" validate:"required,url"`
	Method  string            `json:"method" default:"GET" validate:"oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`
	Headers map[string]string `json:"headers"`
	Query   map[string]string `json:"query"`
	Body    map[string]any    `json:"body"`
}

// Actions holds the resty client shared by every http.request invocation.
type Actions struct {
	client *resty.Client
}

func New(opts Options) (*Actions, error) {
	if err := runtime.PrepareConfig(&opts); err != nil {
		return nil, fmt.Errorf("http action options: %w", err)
	}
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.MaxRetries).
		SetRetryWaitTime(time.Duration(opts.RetryWaitMS) * time.Millisecond).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		SetDebug(opts.Debug)
	return &Actions{client: client}, nil
}

// Definitions returns the registry entries contributed by this package.
func (a *Actions) Definitions() []runtime.ActionDefinition {
	return []runtime.ActionDefinition{
		{
			Name:      "http.request",
			NewConfig: func() any { return &RequestConfig{} },
			Run:       a.request,
		},
	}
}

func (a *Actions) request(ctx context.Context, cfg any, ec *runtime.ExecContext) (map[string]any, error) {
	input := cfg.(*RequestConfig)

	response := map[string]any{}
	errorResponse := map[string]any{}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeaders(input.Headers).
		SetQueryParams(input.Query).
		SetBody(input.Body).
		SetResult(&response).
		SetError(&errorResponse).
		Execute(input.Method, input.URL)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	body := response
	if resp.IsError() {
		body = errorResponse
	}

	return map[string]any{
		"result":      body,
		"status":      resp.Status(),
		"status_code": resp.StatusCode(),
		"is_error":    resp.IsError(),
	}, nil
}
