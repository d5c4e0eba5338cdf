package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gregdel/pushover"
)

type pushoverClient interface {
	SendMessage(message *pushover.Message, recipient *pushover.Recipient) (*pushover.Response, error)
	GetRecipientDetails(recipient *pushover.Recipient) (*pushover.RecipientDetails, error)
}

// Pushover notifier. Pushover has no permission prompt; the recipient is
// validated against the API instead and the result cached once granted.
//
// Pushover messages carry a single supplementary URL, so only the first
// button ("Taken") is linked. Pushover users cannot snooze from the
// message; snoozing goes through the action endpoint or a connected page.
type Pushover struct {
	client    pushoverClient
	recipient *pushover.Recipient
	device    string
	actionURL string

	mu      sync.Mutex
	granted bool
}

// NewPushover creates a notifier sending to userKey with the application
// apiToken. When actionURL is set, notifications link to its
// /notifications/<tag>/actions/taken endpoint.
func NewPushover(apiToken string, userKey string, device string, actionURL string) *Pushover {
	return &Pushover{
		client:    pushover.New(apiToken),
		recipient: pushover.NewRecipient(userKey),
		device:    device,
		actionURL: strings.TrimRight(actionURL, "/"),
	}
}

// Permission is granted once the recipient has been validated
func (p *Pushover) Permission(ctx context.Context) (Permission, error) {
	p.mu.Lock()
	granted := p.granted
	p.mu.Unlock()

	if granted {
		return PermissionGranted, nil
	}

	return p.RequestPermission(ctx)
}

// RequestPermission validates the recipient with the Pushover API
func (p *Pushover) RequestPermission(ctx context.Context) (Permission, error) {
	if err := ctx.Err(); err != nil {
		return PermissionDefault, err
	}

	if _, err := p.client.GetRecipientDetails(p.recipient); err != nil {
		return PermissionDenied, fmt.Errorf("failed to validate pushover recipient: %w", err)
	}

	p.mu.Lock()
	p.granted = true
	p.mu.Unlock()

	return PermissionGranted, nil
}

// Show sends the notification as a Pushover message
func (p *Pushover) Show(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := p.client.SendMessage(p.message(n), p.recipient)
	if err != nil {
		return fmt.Errorf("failed to send pushover message %s: %w", n.Tag, err)
	}

	return nil
}

func (p *Pushover) message(n Notification) *pushover.Message {
	msg := pushover.NewMessageWithTitle(n.Body, n.Title)
	msg.DeviceName = p.device

	if n.RequireInteraction {
		msg.Priority = pushover.PriorityHigh
	}

	// Pushover offers a single link per message, so only the first button
	// can be attached.
	if p.actionURL != "" && len(n.Buttons) > 0 {
		b := n.Buttons[0]
		msg.URL = fmt.Sprintf(
			"%s/notifications/%s/actions/%s?reminder_id=%s",
			p.actionURL,
			url.PathEscape(n.Tag),
			b.Action,
			url.QueryEscape(n.Data.ReminderID),
		)
		msg.URLTitle = b.Title
	}

	return msg
}
