package unraid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jamesprial/unraid-spindown/internal/actuator"
	"github.com/jamesprial/unraid-spindown/internal/idle"
)

const createNotificationMutation = `mutation CreateNotification($input: NotificationData!) {
  createNotification(input: $input) { id }
}`

// Compile-time interface check.
var _ idle.FailureNotifier = (*Notifier)(nil)

// Notifier raises Unraid notifications.
type Notifier struct {
	client Client
	title  string
}

// NewNotifier returns a Notifier backed by client. It panics if client is nil.
func NewNotifier(client Client) *Notifier {
	if client == nil {
		panic("unraid client must not be nil")
	}
	return &Notifier{client: client, title: "Disk spindown"}
}

type createResponse struct {
	CreateNotification struct {
		ID string `json:"id"`
	} `json:"createNotification"`
}

// Send creates note and returns the new notification id.
func (n *Notifier) Send(ctx context.Context, note Notification) (string, error) {
	if note.Importance == "" {
		note.Importance = ImportanceInfo
	}
	data, err := n.client.Execute(ctx, createNotificationMutation, map[string]any{"input": note})
	if err != nil {
		return "", fmt.Errorf("create notification: %w", err)
	}
	var resp createResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("create notification: parse response: %w", err)
	}
	return resp.CreateNotification.ID, nil
}

// NotifySpindownFailure raises a WARNING naming the device and the command
// output.
func (n *Notifier) NotifySpindownFailure(ctx context.Context, device string, err error) error {
	desc := err.Error()
	var aerr *actuator.ActuatorError
	if errors.As(err, &aerr) && aerr.Output != "" {
		desc = fmt.Sprintf("%v\n%s", aerr.Err, aerr.Output)
	}
	_, serr := n.Send(ctx, Notification{
		Title:       n.title,
		Subject:     fmt.Sprintf("%s did not spin down", device),
		Description: desc,
		Importance:  ImportanceWarning,
	})
	return serr
}
