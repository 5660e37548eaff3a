package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	"flexsearch-service/internal/domain/entity"
	"flexsearch-service/internal/domain/repository"
	"flexsearch-service/pkg/logger"
	"flexsearch-service/templates"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailNotifier mails the "search finished" summary through the Gmail API
type GmailNotifier struct {
	gmailService *gmail.Service
	sender       string
	logger       logger.Logger
}

// NewGmailNotifier creates a notifier that sends as sender
func NewGmailNotifier(ctx context.Context, tokenSource oauth2.TokenSource, sender string, logger logger.Logger) (repository.Notifier, error) {
	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	return &GmailNotifier{
		gmailService: service,
		sender:       sender,
		logger:       logger,
	}, nil
}

// Notify sends n to its contact address. Users without one are skipped.
func (s *GmailNotifier) Notify(ctx context.Context, n entity.Notification) error {
	if n.Email == "" {
		s.logger.Debug("No contact email, skipping notification", "jobID", n.JobID, "userID", n.UserID)
		return nil
	}

	html, err := templates.RenderSearchFinished(n)
	if err != nil {
		return err
	}

	raw := BuildMessage(s.sender, n.Email, n.Title, html)
	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString([]byte(raw))}

	sent, err := s.gmailService.Users.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gmail send: %w", err)
	}

	s.logger.Info("Notification sent", "jobID", n.JobID, "messageID", sent.Id)
	return nil
}

// BuildMessage assembles an RFC 2822 HTML message
func BuildMessage(from, to, subject, html string) string {
	var b strings.Builder
	if from != "" {
		b.WriteString("From: " + from + "\r\n")
	}
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	return b.String()
}

// LogNotifier writes notifications to the log. Used when Gmail is not configured.
type LogNotifier struct {
	logger logger.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger logger.Logger) repository.Notifier {
	return &LogNotifier{logger: logger}
}

// Notify implements repository.Notifier
func (l *LogNotifier) Notify(ctx context.Context, n entity.Notification) error {
	l.logger.Info("Search finished notification",
		"jobID", n.JobID,
		"userID", n.UserID,
		"title", n.Title,
		"body", n.Body)
	return nil
}
