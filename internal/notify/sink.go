package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/oshokin/upkeep/internal/config"
	"github.com/oshokin/upkeep/internal/executil"
	"github.com/oshokin/upkeep/internal/logger"
)

var errUnsupportedKind = errors.New("unsupported notification kind")

// Sink sends a message to the operator. It must not block the caller for
// longer than its own delivery timeout and never returns an error.
type Sink interface {
	Notify(ctx context.Context, message string)
}

// LogSink writes messages to the process log at error level.
type LogSink struct{}

// Notify implements Sink.
func (LogSink) Notify(ctx context.Context, message string) {
	logger.ErrorKV(ctx, "Operator notification", "message", message)
}

// CommandSink runs a helper command with the message as its last argument.
type CommandSink struct {
	runner  executil.Runner
	argv    []string
	timeout time.Duration
}

// NewCommandSink creates a sink invoking argv followed by the message.
func NewCommandSink(runner executil.Runner, argv []string, timeout time.Duration) *CommandSink {
	return &CommandSink{
		runner:  runner,
		argv:    slices.Clone(argv),
		timeout: timeout,
	}
}

// Notify implements Sink.
func (s *CommandSink) Notify(ctx context.Context, message string) {
	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	argv := append(slices.Clone(s.argv), message)
	if _, err := executil.RunChecked(callCtx, s.runner, "", argv...); err != nil {
		logger.ErrorKV(ctx, "Notification helper failed", "error", err, "message", message)
	}
}

// prefixed decorates a sink with a fixed message prefix.
type prefixed struct {
	next   Sink
	prefix string
}

// WithPrefix returns a sink prepending prefix and a space to every message.
// An empty prefix returns next unchanged.
//
//nolint:ireturn // Decorator returns the interface it wraps.
func WithPrefix(next Sink, prefix string) Sink {
	if prefix == "" {
		return next
	}

	return &prefixed{next: next, prefix: prefix}
}

// Notify implements Sink.
func (p *prefixed) Notify(ctx context.Context, message string) {
	p.next.Notify(ctx, p.prefix+" "+message)
}

// New builds the sink selected by the configuration.
//
//nolint:ireturn // Factory over Sink implementations.
func New(cfg *config.Notify, runner executil.Runner) (Sink, error) {
	var sink Sink

	switch cfg.Kind {
	case config.NotifyLog, "":
		sink = LogSink{}
	case config.NotifyCommand:
		sink = NewCommandSink(runner, cfg.Command, cfg.Timeout)
	case config.NotifyWebhook:
		sink = NewWebhookSink(http.DefaultClient, cfg.WebhookURL, cfg.Timeout)
	default:
		return nil, fmt.Errorf("notify kind %q: %w", cfg.Kind, errUnsupportedKind)
	}

	return WithPrefix(sink, cfg.Prefix), nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}
