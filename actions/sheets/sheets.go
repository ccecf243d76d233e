// Package sheets provides the spreadsheet built-ins: sheets.append,
// sheets.query and sheets.create, backed by a REST spreadsheet API.
package sheets

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/convoflow/convoflow/runtime"
)

// Options configures the spreadsheet API client. Appends are the only
// network-bound write the engine retries; reads fail fast and fall under
// the call-site skip policy.
type Options struct {
	BaseURL      string        `yaml:"base_url" validate:"required,url_format"`
	Token        string        `yaml:"token"`
	Timeout      time.Duration `yaml:"timeout" default:"15s" validate:"gte=1s"`
	MaxRetries   int           `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
	RetryWaitMS  int           `yaml:"retry_wait_ms" default:"250" validate:"gte=0,lte=10000"`
	RetryMaxWait time.Duration `yaml:"retry_max_wait" default:"4s" validate:"gte=0"`
}

// AppendConfig is the schema of sheets.append.
type AppendConfig struct {
	Spreadsheet string `json:"spreadsheet" validate:"required"`
	Sheet       string `json:"sheet" default:"Sheet1"`
	Row         []any  `json:"row" validate:"required,min=1"`
}

// QueryConfig is the schema of sheets.query.
type QueryConfig struct {
	Spreadsheet string `json:"spreadsheet" validate:"required"`
	Sheet       string `json:"sheet" default:"Sheet1"`
	Range       string `json:"range"`
	Column      string `json:"column"`
	Limit       int    `json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

// CreateConfig is the schema of sheets.create.
type CreateConfig struct {
	Title   string   `json:"title" validate:"required"`
	Headers []string `json:"headers"`
}

type Actions struct {
	base    string
	retried *resty.Client // appends: retry with exponential backoff
	direct  *resty.Client // reads and creates: fail fast
}

func New(opts Options) (*Actions, error) {
	if err := runtime.PrepareConfig(&opts); err != nil {
		return nil, fmt.Errorf("sheets action options: %w", err)
	}
	newClient := func(retries int) *resty.Client {
		c := resty.New().
			SetBaseURL(opts.BaseURL).
			SetTimeout(opts.Timeout).
			SetRetryCount(retries).
			SetRetryWaitTime(time.Duration(opts.RetryWaitMS) * time.Millisecond).
			SetRetryMaxWaitTime(opts.RetryMaxWait)
		if opts.Token != "" {
			c.SetAuthToken(opts.Token)
		}
		return c
	}
	retried := newClient(opts.MaxRetries).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	return &Actions{
		base:    opts.BaseURL,
		retried: retried,
		direct:  newClient(0),
	}, nil
}

func (a *Actions) Definitions() []runtime.ActionDefinition {
	return []runtime.ActionDefinition{
		{
			Name:      "sheets.append",
			NewConfig: func() any { return &AppendConfig{} },
			Run:       a.append,
		},
		{
			Name:      "sheets.query",
			NewConfig: func() any { return &QueryConfig{} },
			Run:       a.query,
		},
		{
			Name:      "sheets.create",
			NewConfig: func() any { return &CreateConfig{} },
			Run:       a.create,
		},
	}
}

func (a *Actions) append(ctx context.Context, cfg any, ec *runtime.ExecContext) (map[string]any, error) {
	input := cfg.(*AppendConfig)

	result := map[string]any{}
	resp, err := a.retried.R().
		SetContext(ctx).
		SetBody(map[string]any{"sheet": input.Sheet, "row": input.Row}).
		SetResult(&result).
		Post(fmt.Sprintf("/spreadsheets/%s/rows", input.Spreadsheet))
	if err != nil {
		return nil, fmt.Errorf("sheet append failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("sheet append failed: %s", resp.Status())
	}

	return map[string]any{"result": result, "status_code": resp.StatusCode()}, nil
}

func (a *Actions) query(ctx context.Context, cfg any, ec *runtime.ExecContext) (map[string]any, error) {
	input := cfg.(*QueryConfig)

	var rows []any
	req := a.direct.R().
		SetContext(ctx).
		SetQueryParam("sheet", input.Sheet).
		SetQueryParam("limit", fmt.Sprintf("%d", input.Limit)).
		SetResult(&rows)
	if input.Range != "" {
		req.SetQueryParam("range", input.Range)
	}
	if input.Column != "" {
		req.SetQueryParam("column", input.Column)
	}

	resp, err := req.Get(fmt.Sprintf("/spreadsheets/%s/rows", input.Spreadsheet))
	if err != nil {
		return nil, fmt.Errorf("sheet query failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("sheet query failed: %s", resp.Status())
	}

	return map[string]any{"result": rows, "count": len(rows)}, nil
}

func (a *Actions) create(ctx context.Context, cfg any, ec *runtime.ExecContext) (map[string]any, error) {
	input := cfg.(*CreateConfig)

	result := map[string]any{}
	resp, err := a.direct.R().
		SetContext(ctx).
		SetBody(map[string]any{"title": input.Title, "headers": input.Headers}).
		SetResult(&result).
		Post("/spreadsheets")
	if err != nil {
		return nil, fmt.Errorf("sheet create failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("sheet create failed: %s", resp.Status())
	}

	return map[string]any{"result": result, "status_code": resp.StatusCode()}, nil
}
