package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/canv/adapter"
	"github.com/justapithecus/canv/adapter/redis"
	"github.com/justapithecus/canv/adapter/webhook"
	"github.com/justapithecus/canv/cli/config"
	"github.com/justapithecus/canv/lode"
	"github.com/justapithecus/canv/registrator"
	"github.com/justapithecus/canv/types"
)

// notifyTimeout bounds the whole publish, retries included.
const notifyTimeout = 30 * time.Second

// AdapterFlags returns the completion notification flags.
func AdapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "adapter", Usage: "Completion notification adapter: webhook or redis"},
		&cli.StringFlag{Name: "adapter-url", Usage: "Webhook endpoint or redis:// URL"},
		&cli.StringFlag{Name: "adapter-channel", Usage: "Redis channel (default: " + redis.DefaultChannel + ")"},
		&cli.StringSliceFlag{Name: "adapter-header", Usage: "Webhook header as key=value (repeatable)"},
		&cli.DurationFlag{Name: "adapter-timeout", Usage: "Per-attempt timeout"},
		&cli.IntFlag{Name: "adapter-retries", Usage: "Retries after the first attempt", Value: webhook.DefaultRetries},
		&cli.DurationFlag{Name: "adapter-retry-interval", Usage: "Fixed wait between attempts", Value: adapter.DefaultRetryInterval},
	}
}

// adapterChoice holds the resolved notification settings.
type adapterChoice struct {
	kind          string
	url           string
	channel       string
	headers       map[string]string
	timeout       time.Duration
	retries       int
	retryInterval time.Duration
}

func resolveAdapter(c *cli.Context, cfg *config.Config) (adapterChoice, error) {
	choice := adapterChoice{
		kind:          resolveString(c, "adapter", configVal(cfg, func(c *config.Config) string { return c.Adapter.Type })),
		url:           resolveString(c, "adapter-url", configVal(cfg, func(c *config.Config) string { return c.Adapter.URL })),
		channel:       resolveString(c, "adapter-channel", configVal(cfg, func(c *config.Config) string { return c.Adapter.Channel })),
		timeout:       resolveDuration(c, "adapter-timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.Adapter.Timeout.Duration })),
		retries:       c.Int("adapter-retries"),
		retryInterval: resolveDuration(c, "adapter-retry-interval", configVal(cfg, func(c *config.Config) time.Duration { return c.Adapter.RetryInterval.Duration })),
	}
	if !c.IsSet("adapter-retries") && cfg != nil && cfg.Adapter.Retries != nil {
		choice.retries = *cfg.Adapter.Retries
	}

	choice.headers = make(map[string]string)
	if cfg != nil {
		for k, v := range cfg.Adapter.Headers {
			choice.headers[k] = v
		}
	}
	for _, h := range c.StringSlice("adapter-header") {
		k, v, ok := strings.Cut(h, "=")
		if !ok || k == "" {
			return adapterChoice{}, fmt.Errorf("invalid --adapter-header %q (want key=value)", h)
		}
		choice.headers[k] = v
	}

	if choice.kind == "" {
		return choice, nil
	}
	if !slices.Contains(config.AdapterTypes, choice.kind) {
		return adapterChoice{}, fmt.Errorf("unsupported adapter: %s (must be webhook or redis)", choice.kind)
	}
	if choice.url == "" {
		return adapterChoice{}, errors.New("--adapter-url is required when --adapter is set")
	}
	if choice.retries < 0 {
		return adapterChoice{}, errors.New("--adapter-retries must be >= 0")
	}
	return choice, nil
}

// build creates the adapter, or returns nil when notification is off.
func (a adapterChoice) build() (adapter.Adapter, error) {
	switch a.kind {
	case "":
		return nil, nil
	case "webhook":
		return webhook.New(webhook.Config{
			URL:           a.url,
			Headers:       a.headers,
			Timeout:       a.timeout,
			Retries:       a.retries,
			RetryInterval: a.retryInterval,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:           a.url,
			Channel:       a.channel,
			Timeout:       a.timeout,
			Retries:       a.retries,
			RetryInterval: a.retryInterval,
		})
	default:
		return nil, fmt.Errorf("unsupported adapter: %s", a.kind)
	}
}

// completionEvent builds the notification payload for a finished run.
func completionEvent(meta *types.RunMeta, result *registrator.RunResult, runErr error, duration time.Duration) *adapter.RegistrationCompletedEvent {
	event := &adapter.RegistrationCompletedEvent{
		EventType:  adapter.EventTypeRegistrationCompleted,
		Version:    types.Version,
		RunID:      meta.RunID,
		Input:      meta.Input,
		Output:     meta.Output,
		Status:     lode.RunStatusCompleted,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		DurationMs: duration.Milliseconds(),
	}
	if result != nil {
		event.Frames = result.Frames
		event.Registered = result.Registered
		event.Failed = result.Failed
		event.Unsubmitted = result.Unsubmitted
	}
	if runErr != nil {
		event.Status = lode.RunStatusFailed
		event.Error = runErr.Error()
	}
	return event
}

// publish sends the event on a context detached from run cancellation, so
// an interrupted run is still reported.
func publish(a adapter.Adapter, event *adapter.RegistrationCompletedEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	return a.Publish(ctx, event)
}
