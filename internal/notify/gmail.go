package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/slotbook/internal/instrumentation"
	"github.com/teemow/slotbook/internal/logging"
)

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// GmailSender sends through the Gmail API as the authorized calendar owner.
type GmailSender struct {
	svc    *gmail.Service
	logger *slog.Logger
}

// NewGmailSender creates a sender authenticated with tokens from ts.
// endpoint overrides the API base URL when non-empty.
func NewGmailSender(ctx context.Context, ts oauth2.TokenSource, endpoint string, logger *slog.Logger) (*GmailSender, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &GmailSender{svc: svc, logger: logging.WithComponent(logger, "gmail")}, nil
}

// Send renders msg and submits it with users.messages.send.
func (s *GmailSender) Send(ctx context.Context, msg Message) error {
	ctx, span := instrumentation.StartSpan(ctx, "gmail.send")
	defer span.End()

	raw, err := msg.Bytes()
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return fmt.Errorf("invalid message: %w", err)
	}

	sent, err := s.svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	instrumentation.SetSpanSuccess(span)
	s.logger.Debug("email sent", slog.String("message_id", sent.Id), slog.Int("recipients", len(msg.To)))
	return nil
}
