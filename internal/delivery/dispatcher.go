package delivery

import (
	"context"
	"log"
	"time"

	"github.com/SergFTM/wealth-os-sub013/internal/observability/metrics"
)

// Attempt is the recorded outcome of one channel send.
type Attempt struct {
	Channel     string        `json:"channel"`
	Succeeded   bool          `json:"succeeded"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
	AttemptedAt time.Time     `json:"attempted_at"`
}

// Dispatcher fans a payload out to the requested channels. Each send
// is bounded by a timeout; one failing channel never blocks another.
type Dispatcher struct {
	channels map[string]Channel
	timeout  time.Duration
	logger   *log.Logger
}

// DispatcherOption configures the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSendTimeout bounds each channel send.
func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewDispatcher constructs a dispatcher over the given channels.
func NewDispatcher(logger *log.Logger, channels []Channel, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	byName := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		if ch != nil {
			byName[ch.Name()] = ch
		}
	}
	d := &Dispatcher{
		channels: byName,
		timeout:  10 * time.Second,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send delivers the payload over every requested channel and returns
// one attempt record per channel. An unknown channel name is recorded
// as a failed attempt.
func (d *Dispatcher) Send(ctx context.Context, channelNames []string, payload Payload) []Attempt {
	attempts := make([]Attempt, 0, len(channelNames))
	for _, name := range channelNames {
		started := time.Now()
		channel, ok := d.channels[name]
		if !ok {
			attempts = append(attempts, Attempt{
				Channel:     name,
				Error:       "unknown channel",
				AttemptedAt: started.UTC(),
			})
			metrics.ObserveDelivery(name, metrics.ResultError, 0)
			d.logger.Printf("delivery: unknown channel %q for notification %s", name, payload.NotificationID)
			continue
		}
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := channel.Send(sendCtx, payload)
		cancel()
		duration := time.Since(started)

		attempt := Attempt{
			Channel:     name,
			Succeeded:   err == nil,
			Duration:    duration,
			AttemptedAt: started.UTC(),
		}
		result := metrics.ResultSuccess
		if err != nil {
			failure := &FailureError{Channel: name, Err: err}
			attempt.Error = failure.Error()
			result = metrics.ResultError
			d.logger.Printf("delivery: %v notification=%s user=%s", failure, payload.NotificationID, payload.UserID)
		}
		metrics.ObserveDelivery(name, result, duration)
		attempts = append(attempts, attempt)
	}
	return attempts
}

// Channels lists the configured channel names.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for name := range d.channels {
		names = append(names, name)
	}
	return names
}
