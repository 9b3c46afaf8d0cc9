package delivery

import (
	"context"
	"log"
)

// LogChannel writes deliveries to the application log. Used as the
// default channel in development and as a fallback target.
type LogChannel struct {
	logger *log.Logger
}

// NewLogChannel constructs a log channel.
func NewLogChannel(logger *log.Logger) *LogChannel {
	if logger == nil {
		logger = log.Default()
	}
	return &LogChannel{logger: logger}
}

// Name implements Channel.
func (l *LogChannel) Name() string { return "inapp" }

// Send implements Channel.
func (l *LogChannel) Send(_ context.Context, payload Payload) error {
	l.logger.Printf("delivery: user=%s priority=%s title=%q", payload.UserID, payload.Priority, payload.Title)
	return nil
}
