package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"packager/internal/config"
	"packager/internal/pipeline"
	"packager/pkg/backoff"
	"packager/pkg/circuitbreaker"
	"packager/pkg/cloudevent"
	"time"
)

// Webhook posts pipeline events to a callback URL. Delivery errors are logged
// and never fail the run. After repeated failures the breaker opens and the
// remaining events of the run are dropped without a request.
type Webhook struct {
	url     string
	key     string
	events  []string
	builder *EventBuilder
	sender  *cloudevent.Sender
	breaker *circuitbreaker.Breaker
}

// Option is a functional option for NewWebhook.
type Option func(*options)

type options struct {
	backoff *backoff.Config
	breaker circuitbreaker.Config
	meta    map[string]string
}

// WithBackoff sets the delay between delivery retries.
func WithBackoff(cfg *backoff.Config) Option {
	return func(o *options) { o.backoff = cfg }
}

// WithBreaker configures the circuit breaker guarding the callback URL.
func WithBreaker(cfg circuitbreaker.Config) Option {
	return func(o *options) { o.breaker = cfg }
}

// WithMeta attaches meta to the data of every event.
func WithMeta(meta map[string]string) Option {
	return func(o *options) { o.meta = meta }
}

// NewWebhook creates a webhook listener from the callback settings of cfg.
func NewWebhook(cfg *config.PackConfig, opts ...Option) *Webhook {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	host := extractHost(cfg.CallbackURL)
	breakerCfg := o.breaker
	if breakerCfg.OnStateChange == nil {
		breakerCfg.OnStateChange = func(from, to circuitbreaker.State) {
			slog.Warn("Callback circuit state changed", "destination", host, "from", from.String(), "to", to.String())
		}
	}

	return &Webhook{
		url:     cfg.CallbackURL,
		key:     cfg.CallbackKey,
		events:  cfg.CallbackEvents,
		builder: NewEventBuilder(Source, o.meta),
		sender: cloudevent.NewSender(cfg.CallbackTimeout,
			cloudevent.WithRetries(cfg.CallbackRetries),
			cloudevent.WithBackoff(o.backoff)),
		breaker: circuitbreaker.New(breakerCfg),
	}
}

// OnEvent implements pipeline.Listener.
func (w *Webhook) OnEvent(ctx context.Context, e pipeline.Event) {
	event := w.builder.Build(e)
	if event == nil || !FilteredEvents(event.Type, w.events) {
		return
	}

	start := time.Now()
	err := w.breaker.Do(func() error {
		return w.sender.Send(ctx, w.url, event, w.key)
	})

	logger := slog.With("type", event.Type, "runId", e.RunID, "destination", extractHost(w.url))
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		logger.Debug("Callback skipped, circuit open")
	case err != nil:
		logger.Warn("Failed to send stage event", "callbackError", err)
	default:
		logger.Debug("Callback delivered", "durationMs", time.Since(start).Milliseconds())
	}
}

// extractHost extracts the host from a URL for logging without credentials or query.
func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}
