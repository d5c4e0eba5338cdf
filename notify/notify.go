// Package notify defines the capability used to show reminder notifications
// to the user, with Pushover, log and in-process backends.
package notify

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied occurs when notifications have not been granted
	ErrPermissionDenied = errors.New("notification permission not granted")
)

// Permission state of a notifier
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Action a user can take on a notification
type Action string

const (
	ActionTaken     Action = "taken"
	ActionSnooze    Action = "snooze"
	ActionDismissed Action = "dismissed"
)

// ParseAction validates a user action name
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionTaken, ActionSnooze, ActionDismissed:
		return a, nil
	}

	return "", fmt.Errorf("unknown notification action %q", s)
}

// Button is a named action offered on a notification
type Button struct {
	Action Action `json:"action"`
	Title  string `json:"title"`
}

// Data identifies the reminder a notification belongs to
type Data struct {
	ReminderID   string `json:"reminder_id"`
	MedicineName string `json:"medicine_name"`
}

// Notification to be shown to the user
type Notification struct {
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	Tag                string   `json:"tag"`
	RequireInteraction bool     `json:"require_interaction"`
	Buttons            []Button `json:"buttons,omitempty"`
	Data               Data     `json:"data"`
}

// Event reports a user action on, or the closing of, a shown notification
type Event struct {
	Tag    string `json:"tag"`
	Action Action `json:"action"`
	Data   Data   `json:"data"`
}

// Notifier shows notifications
type Notifier interface {
	Permission(ctx context.Context) (Permission, error)
	RequestPermission(ctx context.Context) (Permission, error)
	Show(ctx context.Context, n Notification) error
}

// ActionSource is implemented by notifiers that can report user actions
type ActionSource interface {
	OnAction(handler func(Event))
}

const (
	reminderTitle = "Medicine Reminder"
	snoozedTitle  = "Medicine Reminder - Snoozed"
	followUpTitle = "Medicine Reminder - Snooze Ended"
)

// ForReminder builds the notification announcing a due dose
func ForReminder(reminderID string, medicineName string) Notification {
	return Notification{
		Title:              reminderTitle,
		Body:               "Time to take: " + medicineName,
		Tag:                reminderID,
		RequireInteraction: true,
		Buttons: []Button{
			{Action: ActionTaken, Title: "Taken"},
			{Action: ActionSnooze, Title: "Snooze 10 min"},
		},
		Data: Data{
			ReminderID:   reminderID,
			MedicineName: medicineName,
		},
	}
}

// SnoozeConfirmation builds the informational notification shown after a
// snooze action
func SnoozeConfirmation(tag string, data Data, delayMinutes int) Notification {
	return Notification{
		Title: snoozedTitle,
		Body:  fmt.Sprintf("You will be reminded again in %d minutes", delayMinutes),
		Tag:   tag + "_snooze",
		Data:  data,
	}
}

// FollowUp builds the notification shown once a snooze ends
func FollowUp(data Data) Notification {
	name := data.MedicineName
	if name == "" {
		name = "your medicine"
	}

	n := ForReminder(data.ReminderID, name)
	n.Title = followUpTitle
	n.Tag = data.ReminderID + "_followup"
	n.Data.MedicineName = data.MedicineName

	return n
}
