package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultActionTimeout is the fixed ceiling an action routine races against.
const DefaultActionTimeout = 30 * time.Second

// ActionExecutor validates a resolved action's configuration against its
// schema and runs it under a fixed timeout.
type ActionExecutor struct {
	registry *Registry
	timeout  time.Duration
	l        *slog.Logger
}

func NewActionExecutor(registry *Registry, timeout time.Duration, l *slog.Logger) *ActionExecutor {
	if timeout <= 0 {
		timeout = DefaultActionTimeout
	}
	return &ActionExecutor{
		registry: registry,
		timeout:  timeout,
		l:        l,
	}
}

// Execute runs one declarative action. rawConfig must already be
// interpolated by the caller. An unknown type is a hard error naming the
// registered types; a config that fails its schema aborts only this action;
// a routine that outlives the ceiling surfaces an ActionTimeoutError.
func (e *ActionExecutor) Execute(ctx context.Context, actionType string, rawConfig map[string]any, ec *ExecContext) (map[string]any, error) {
	def, ok := e.registry.Get(actionType)
	if !ok {
		return nil, fmt.Errorf("unknown action type %q (registered: %s)",
			actionType, strings.Join(e.registry.Names(), ", "))
	}

	var cfg any
	if def.NewConfig != nil {
		typed := def.NewConfig()
		if err := mapToStruct(rawConfig, typed); err != nil {
			return nil, NewActionError(actionType, fmt.Errorf("invalid config: %w", err))
		}
		if err := PrepareConfig(typed); err != nil {
			return nil, NewActionError(actionType, err)
		}
		cfg = typed
	} else {
		cfg = rawConfig
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		result map[string]any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: NewActionError(actionType, fmt.Errorf("panic: %v", r))}
			}
		}()
		result, err := def.Run(runCtx, cfg, ec)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			var ae *ActionError
			if errors.As(out.err, &ae) {
				return nil, out.err
			}
			return nil, NewActionError(actionType, out.err)
		}
		return out.result, nil
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return nil, NewActionError(actionType, ctx.Err())
		}
		return nil, &ActionTimeoutError{ActionType: actionType, Limit: e.timeout}
	}
}
