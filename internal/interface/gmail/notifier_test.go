package gmail

import (
	"context"
	"strings"
	"testing"

	"flexsearch-service/internal/domain/entity"
	"flexsearch-service/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func TestBuildMessage(t *testing.T) {
	msg := BuildMessage("alerts@example.com", "traveller@example.com", "Best prices found!", "<p>hi</p>")

	headers, body, found := strings.Cut(msg, "\r\n\r\n")
	assert.True(t, found)
	assert.Contains(t, headers, "From: alerts@example.com")
	assert.Contains(t, headers, "To: traveller@example.com")
	assert.Contains(t, headers, "Subject: Best prices found!")
	assert.Contains(t, headers, "Content-Type: text/html")
	assert.Equal(t, "<p>hi</p>", body)
}

func TestBuildMessage_EncodesNonASCIISubject(t *testing.T) {
	msg := BuildMessage("", "traveller@example.com", "Économisez 30 €", "x")
	assert.Contains(t, msg, "Subject: =?utf-8?q?")
	assert.NotContains(t, msg, "From:")
}

func TestGmailNotifier_SkipsMissingEmail(t *testing.T) {
	n := &GmailNotifier{logger: logger.NewNopLogger()}
	err := n.Notify(context.Background(), entity.Notification{JobID: "job-1"})
	assert.NoError(t, err)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(logger.NewNopLogger())
	assert.NoError(t, n.Notify(context.Background(), entity.Notification{JobID: "job-1", Title: "t"}))
}
