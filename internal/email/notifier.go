package email

import (
	"context"
	"sync"
	"time"

	"github.com/wastetrack/wastetrack/internal/logger"
)

// Notifier delivers account notifications without blocking the caller.
// Delivery is best effort: failures are logged and dropped.
type Notifier struct {
	sender  Sender
	appName string
	timeout time.Duration
	log     *logger.Logger
	wg      sync.WaitGroup
}

// NewNotifier creates a Notifier over sender
func NewNotifier(sender Sender, appName string, log *logger.Logger) *Notifier {
	return &Notifier{
		sender:  sender,
		appName: appName,
		timeout: 10 * time.Second,
		log:     log.WithComponent("notifier"),
	}
}

// CredentialsChanged notifies the owner after an email or password change
func (n *Notifier) CredentialsChanged(to, username string, emailChanged bool, at time.Time) {
	if n == nil {
		return
	}
	n.dispatch(CredentialsChangedMessage(to, username, n.appName, emailChanged, at))
}

// Welcome notifies a newly registered account
func (n *Notifier) Welcome(to, username string) {
	if n == nil {
		return
	}
	n.dispatch(WelcomeMessage(to, username, n.appName))
}

// Wait blocks until in-flight deliveries finish
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) dispatch(msg Message) {
	if n.sender == nil || msg.To == "" {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.sender.Send(ctx, msg); err != nil {
			n.log.Warn().Err(err).Str("subject", msg.Subject).Msg("failed to deliver notification")
		}
	}()
}
