// ABOUTME: Matrix alert sink posting Markdown-formatted alerts to a room via mautrix
// ABOUTME: Sends are bounded by a timeout so a slow homeserver cannot stall the integrator

package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/format"
	"maunium.net/go/mautrix/id"
)

const defaultSendTimeout = 30 * time.Second

// MatrixOptions configures a MatrixSink.
type MatrixOptions struct {
	Homeserver  string
	UserID      string
	AccessToken string
	RoomID      string
	SendTimeout time.Duration
	Logger      *slog.Logger
}

// messageSender is the subset of *mautrix.Client the sink uses.
type messageSender interface {
	SendMessageEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, contentJSON any, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error)
}

// MatrixSink posts alerts to a Matrix room.
type MatrixSink struct {
	client  messageSender
	roomID  id.RoomID
	timeout time.Duration
	logger  *slog.Logger
}

// NewMatrixSink creates a sink logged in with an access token.
func NewMatrixSink(opts MatrixOptions) (*MatrixSink, error) {
	if opts.RoomID == "" {
		return nil, errors.New("matrix room_id is required")
	}
	client, err := mautrix.NewClient(opts.Homeserver, id.UserID(opts.UserID), opts.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	return newMatrixSink(client, opts), nil
}

func newMatrixSink(client messageSender, opts MatrixOptions) *MatrixSink {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &MatrixSink{
		client:  client,
		roomID:  id.RoomID(opts.RoomID),
		timeout: opts.SendTimeout,
		logger:  opts.Logger.With("component", "notify", "sink", "matrix"),
	}
}

// Name implements Sink.
func (s *MatrixSink) Name() string { return "matrix" }

// Notify implements Sink.
func (s *MatrixSink) Notify(ctx context.Context, a Alert) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	content := format.RenderMarkdown(Format(a), true, false)
	if _, err := s.client.SendMessageEvent(ctx, s.roomID, event.EventMessage, &content); err != nil {
		s.logger.Error("failed to send alert", "room", s.roomID.String(), "error", err)
		return fmt.Errorf("sending matrix alert: %w", err)
	}
	return nil
}
