package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrCameraUnavailable means the device is missing, busy, or permission was
// denied. Non-fatal: the dialog offers a retry.
var ErrCameraUnavailable = errors.New("camera unavailable")

// Feed yields decoded text from a live video feed.
type Feed interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// Source grants exclusive access to a scanning device for the lifetime of
// one dialog. Acquire fails with ErrCameraUnavailable when the device
// cannot be opened.
type Source interface {
	Acquire(ctx context.Context) (Feed, error)
}

// TokenHandler consumes one scanned payload; handled=false means the
// payload was not a check-in token and scanning should continue.
type TokenHandler interface {
	CheckIn(ctx context.Context, payload []byte) (bool, error)
}

// Session runs one scanning dialog: acquire the camera, feed scans to the
// handler, stop at the first accepted check-in. The device is released on
// every exit path — success, cancellation, or error.
type Session struct {
	source  Source
	handler TokenHandler
	logger  *slog.Logger
}

func NewSession(source Source, handler TokenHandler, logger *slog.Logger) *Session {
	return &Session{source: source, handler: handler, logger: logger}
}

func (s *Session) Run(ctx context.Context) error {
	feed, err := s.source.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire scanner: %w", err)
	}
	defer func() { _ = feed.Close() }()

	for {
		text, err := feed.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Dialog cancelled; not a scan failure.
				return ctx.Err()
			}
			return fmt.Errorf("read scan: %w", err)
		}

		handled, err := s.handler.CheckIn(ctx, []byte(text))
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
		// Unrelated code in frame; keep scanning.
		s.logger.Debug("ignoring non-token scan")
	}
}
