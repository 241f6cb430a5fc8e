// Package queue carries student notifications over RabbitMQ: Publisher
// implements service.Notifier and StartNotificationConsumer drains the queue
// into a line-oriented log file.
package queue

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/polteknik/kompen/internal/service"
)

// NotificationEvent is the JSON body of one message on the notification
// queue.
type NotificationEvent struct {
	MessageID string                 `json:"message_id"`
	Template  string                 `json:"template"`
	Subject   string                 `json:"subject"`
	UserID    uint64                 `json:"user_id"`
	EntityID  uint64                 `json:"entity_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

func newEvent(id string, n service.Notification, at time.Time) NotificationEvent {
	return NotificationEvent{
		MessageID: id,
		Template:  n.Template,
		Subject:   n.Subject,
		UserID:    n.UserID,
		EntityID:  n.EntityID,
		Data:      n.Data,
		CreatedAt: at.UTC(),
	}
}

var subjects = map[string]string{
	"application": "Pengajuan pekerjaan",
	"payment":     "Pembayaran kompensasi",
}

// Text renders the message shown to the student.
func (e NotificationEvent) Text() string {
	subject, ok := subjects[e.Subject]
	if !ok {
		subject = e.Subject
	}
	verdict := "disetujui"
	if e.Template == "rejection" {
		verdict = "ditolak"
	}
	return fmt.Sprintf("%s #%d %s", subject, e.EntityID, verdict)
}

// Line formats the event as one log line with data keys in sorted order.
func (e NotificationEvent) Line() string {
	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] notification | id=%s | template=%s | user_id=%d | %q",
		e.CreatedAt.Format(time.RFC3339), e.MessageID, e.Template, e.UserID, e.Text())
	for _, k := range keys {
		fmt.Fprintf(&b, " | %s=%v", k, e.Data[k])
	}
	b.WriteByte('\n')
	return b.String()
}
