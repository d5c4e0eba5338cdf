package agent

import (
	"time"

	"git.0xdad.com/tblyler/lifespan/notify"
)

// Kind of a message exchanged with the agent
type Kind string

const (
	// KindDeliver asks the agent to show a reminder notification
	KindDeliver Kind = "deliver"
	// KindAction reports a user action on a notification
	KindAction Kind = "action"
	// KindPing is the liveness handshake, answered with KindPong
	KindPing Kind = "ping"
	KindPong Kind = "pong"

	// Relayed to listeners
	KindTaken     Kind = "MEDICINE_TAKEN"
	KindSnoozed   Kind = "MEDICINE_SNOOZED"
	KindDismissed Kind = "NOTIFICATION_DISMISSED"

	kindFollowUp Kind = "follow_up"
)

// Message exchanged with the agent and relayed to listeners
type Message struct {
	Kind         Kind          `json:"type"`
	ReminderID   string        `json:"reminder_id,omitempty"`
	MedicineName string        `json:"medicine_name,omitempty"`
	Tag          string        `json:"tag,omitempty"`
	Action       notify.Action `json:"action,omitempty"`
	At           time.Time     `json:"at"`

	reply chan Message
}

func (m Message) data() notify.Data {
	return notify.Data{ReminderID: m.ReminderID, MedicineName: m.MedicineName}
}

// DeliveryRequest for a due reminder
func DeliveryRequest(reminderID string, medicineName string) Message {
	return Message{Kind: KindDeliver, ReminderID: reminderID, MedicineName: medicineName}
}

// ActionReport for a user action on the notification with tag
func ActionReport(tag string, action notify.Action, reminderID string) Message {
	return Message{Kind: KindAction, Tag: tag, Action: action, ReminderID: reminderID}
}
