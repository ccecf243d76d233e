package runtime

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type echoConfig struct {
	Greeting string `json:"greeting" default:"hello" validate:"required"`
	Count    int    `json:"count" validate:"gte=1,lte=10"`
}

func newTestExecutor(t *testing.T, timeout time.Duration) (*Registry, *ActionExecutor) {
	t.Helper()
	registry := NewRegistry(slog.Default())
	registry.MustRegister(
		ActionDefinition{
			Name:      "test.echo",
			NewConfig: func() any { return &echoConfig{} },
			Run: func(ctx context.Context, cfg any, ec *ExecContext) (map[string]any, error) {
				c := cfg.(*echoConfig)
				return map[string]any{"result": c.Greeting, "count": c.Count}, nil
			},
		},
		ActionDefinition{
			Name: "test.slow",
			Run: func(ctx context.Context, cfg any, ec *ExecContext) (map[string]any, error) {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Second):
					return map[string]any{"result": "late"}, nil
				}
			},
		},
		ActionDefinition{
			Name: "test.fail",
			Run: func(ctx context.Context, cfg any, ec *ExecContext) (map[string]any, error) {
				return nil, errors.New("backend unavailable")
			},
		},
		ActionDefinition{
			Name: "test.panic",
			Run: func(ctx context.Context, cfg any, ec *ExecContext) (map[string]any, error) {
				panic("boom")
			},
		},
	)
	return registry, NewActionExecutor(registry, timeout, slog.Default())
}

func TestExecute_ValidatedConfig(t *testing.T) {
	_, exec := newTestExecutor(t, time.Second)

	result, err := exec.Execute(context.Background(), "test.echo",
		map[string]any{"greeting": "hi", "count": 3}, &ExecContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["result"] != "hi" || result["count"] != 3 {
		t.Errorf("unexpected result: %#v", result)
	}
}

func TestExecute_DefaultsApplied(t *testing.T) {
	_, exec := newTestExecutor(t, time.Second)

	result, err := exec.Execute(context.Background(), "test.echo",
		map[string]any{"count": 1}, &ExecContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["result"] != "hello" {
		t.Errorf("default greeting not applied: %#v", result)
	}
}

func TestExecute_SchemaFailure(t *testing.T) {
	_, exec := newTestExecutor(t, time.Second)

	_, err := exec.Execute(context.Background(), "test.echo",
		map[string]any{"count": 99}, &ExecContext{})
	if err == nil {
		t.Fatal("out-of-range config should fail validation")
	}
	var ae *ActionError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *ActionError, got %T", err)
	}
	if ae.ActionType != "test.echo" {
		t.Errorf("error names action %q, want test.echo", ae.ActionType)
	}
}

func TestExecute_UnknownType(t *testing.T) {
	_, exec := newTestExecutor(t, time.Second)

	_, err := exec.Execute(context.Background(), "test.missing", nil, &ExecContext{})
	if err == nil {
		t.Fatal("unknown action type should error")
	}
	if !strings.Contains(err.Error(), "test.echo") {
		t.Errorf("error should name the registered types: %v", err)
	}
}

func TestExecute_Timeout(t *testing.T) {
	_, exec := newTestExecutor(t, 30*time.Millisecond)

	start := time.Now()
	_, err := exec.Execute(context.Background(), "test.slow", nil, &ExecContext{})
	elapsed := time.Since(start)

	var te *ActionTimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected *ActionTimeoutError, got %v", err)
	}
	if te.ActionType != "test.slow" {
		t.Errorf("timeout names action %q, want test.slow", te.ActionType)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("timeout did not bound execution, took %s", elapsed)
	}
}

func TestExecute_RoutineFailureWrapped(t *testing.T) {
	_, exec := newTestExecutor(t, time.Second)

	_, err := exec.Execute(context.Background(), "test.fail", nil, &ExecContext{})
	var ae *ActionError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *ActionError, got %T", err)
	}
	if ae.ActionType != "test.fail" {
		t.Errorf("error names action %q", ae.ActionType)
	}
	if !strings.Contains(err.Error(), "backend unavailable") {
		t.Errorf("underlying reason lost: %v", err)
	}
}

func TestExecute_PanicRecovered(t *testing.T) {
	_, exec := newTestExecutor(t, time.Second)

	_, err := exec.Execute(context.Background(), "test.panic", nil, &ExecContext{})
	var ae *ActionError
	if !errors.As(err, &ae) {
		t.Fatalf("panic should surface as *ActionError, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("panic value lost: %v", err)
	}
}

func TestExecute_ParentContextCancelled(t *testing.T) {
	_, exec := newTestExecutor(t, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.Execute(ctx, "test.slow", nil, &ExecContext{})
	if err == nil {
		t.Fatal("cancelled parent context should abort the action")
	}
	var te *ActionTimeoutError
	if errors.As(err, &te) {
		t.Error("parent cancellation must not masquerade as a timeout")
	}
}
