package notify

import (
	"context"

	"github.com/charmbracelet/log"
)

// Log notifier writes notifications to a logger. It is always granted and
// suits headless runs where the log file is the only surface.
type Log struct {
	l *log.Logger
}

func NewLog(l *log.Logger) *Log {
	return &Log{l: l}
}

func (n *Log) Permission(context.Context) (Permission, error) {
	return PermissionGranted, nil
}

func (n *Log) RequestPermission(context.Context) (Permission, error) {
	return PermissionGranted, nil
}

func (n *Log) Show(_ context.Context, notification Notification) error {
	n.l.Info(notification.Title,
		"body", notification.Body,
		"tag", notification.Tag,
		"reminder", notification.Data.ReminderID,
	)

	return nil
}
