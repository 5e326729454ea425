// Package mail sends the account emails of the site: password reset links,
// welcome messages with a temporary password and email verification links.
package mail

import (
	"context"
	"log/slog"
	"sync"
)

// Message is one outgoing HTML email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of sending them. It is used
// in development and whenever no SMTP host is configured.
type LogSender struct {
	From   string
	Logger *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "email (not sent)",
		slog.String("from", s.From),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.HTML),
	)
	return nil
}

// Deliver sends msg and logs a failure instead of returning it. Account
// flows never tell the visitor whether a mail went out.
func Deliver(ctx context.Context, s Sender, logger *slog.Logger, msg Message) {
	if err := s.Send(ctx, msg); err != nil {
		logger.ErrorContext(ctx, "send email failed",
			slog.String("to", msg.To),
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()))
	}
}

// AsyncSender hands each message to Next on its own goroutine and returns
// at once, so a request never waits on the mail server. Failures are logged.
type AsyncSender struct {
	Next   Sender
	Logger *slog.Logger
	wg     sync.WaitGroup
}

func NewAsyncSender(next Sender, logger *slog.Logger) *AsyncSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncSender{Next: next, Logger: logger}
}

func (s *AsyncSender) Send(ctx context.Context, msg Message) error {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		Deliver(ctx, s.Next, s.Logger, msg)
	}()
	return nil
}

// Wait blocks until every accepted message has been handed to Next, or ctx
// ends first.
func (s *AsyncSender) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
