package email

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wastetrack/wastetrack/internal/config"
	"github.com/wastetrack/wastetrack/internal/logger"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return s.err
}

func TestBuildMIME(t *testing.T) {
	from := "WasteTrack <noreply@example.com>"

	t.Run("multipart when both bodies are set", func(t *testing.T) {
		raw := buildMIME(from, Message{To: "ana@example.com", Subject: "Hi", TextBody: "plain", HTMLBody: "<p>html</p>"})

		assert.Contains(t, raw, "From: "+from+"\r\n")
		assert.Contains(t, raw, "To: ana@example.com\r\n")
		assert.Contains(t, raw, "multipart/alternative")
		assert.Less(t, strings.Index(raw, "text/plain"), strings.Index(raw, "text/html"))
		assert.True(t, strings.HasSuffix(raw, "--boundary_wastetrack_email--"))
	})

	t.Run("html only", func(t *testing.T) {
		raw := buildMIME(from, Message{To: "ana@example.com", Subject: "Hi", HTMLBody: "<p>html</p>"})
		assert.Contains(t, raw, "Content-Type: text/html; charset=UTF-8\r\n\r\n<p>html</p>")
		assert.NotContains(t, raw, "multipart")
	})

	t.Run("non-ascii subject is encoded", func(t *testing.T) {
		raw := buildMIME(from, Message{To: "ana@example.com", Subject: "Contenedor lleno ✓", TextBody: "x"})
		assert.Contains(t, raw, "Subject: =?utf-8?q?")
		assert.Contains(t, raw, "Content-Type: text/plain")
	})
}

func TestCredentialsChangedMessage(t *testing.T) {
	at := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)

	pw := CredentialsChangedMessage("ana@example.com", "<ana>", "WasteTrack", false, at)
	assert.Equal(t, "ana@example.com", pw.To)
	assert.Equal(t, "Your WasteTrack password was changed", pw.Subject)
	assert.Contains(t, pw.HTMLBody, "&lt;ana&gt;")
	assert.NotContains(t, pw.HTMLBody, "<ana>")
	assert.Contains(t, pw.TextBody, "<ana>")
	assert.Contains(t, pw.TextBody, at.Format(time.RFC1123))

	em := CredentialsChangedMessage("new@example.com", "ana", "WasteTrack", true, at)
	assert.Equal(t, "Your WasteTrack sign-in email was changed", em.Subject)
}

func TestWelcomeMessage(t *testing.T) {
	msg := WelcomeMessage("ana@example.com", "ana", "WasteTrack")
	assert.Equal(t, "Welcome to WasteTrack", msg.Subject)
	assert.Contains(t, msg.TextBody, "Hi ana,")
	assert.Contains(t, msg.HTMLBody, "<!DOCTYPE html>")
}

func TestNotifierDelivers(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifier(sender, "WasteTrack", logger.Nop())

	n.Welcome("ana@example.com", "ana")
	n.CredentialsChanged("ana@example.com", "ana", true, time.Now())
	n.Welcome("", "nobody")
	n.Wait()

	require.Len(t, sender.sent, 2)
	subjects := []string{sender.sent[0].Subject, sender.sent[1].Subject}
	assert.Contains(t, subjects, "Welcome to WasteTrack")
}

func TestNotifierSwallowsFailures(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	n := NewNotifier(sender, "WasteTrack", logger.Nop())

	n.Welcome("ana@example.com", "ana")
	n.Wait()

	assert.Len(t, sender.sent, 1)
}

func TestNilNotifierIsSafe(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() { n.Welcome("ana@example.com", "ana") })
}

func TestNewSender(t *testing.T) {
	s, err := NewSender(context.Background(), config.EmailConfig{Provider: "log"}, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, s)
	assert.NoError(t, s.Send(context.Background(), Message{To: "ana@example.com", Subject: "x"}))

	_, err = NewSender(context.Background(), config.EmailConfig{Provider: "carrier-pigeon"}, logger.Nop())
	assert.Error(t, err)

	_, err = NewSender(context.Background(), config.EmailConfig{
		Provider: "gmail",
		Gmail:    config.GmailEmailConfig{CredentialsJSON: "{not json", SenderAddress: "noreply@example.com"},
	}, logger.Nop())
	assert.Error(t, err)

	_, err = NewGmailSender(context.Background(), GmailConfig{CredentialsJSON: "{}"})
	assert.ErrorContains(t, err, "sender address is required")
}
