package tray

import (
	"fmt"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/bluetray/bluetray/internal/device"
)

// Notifier shows desktop notifications for failed operations.
type Notifier struct {
	mu      sync.RWMutex
	enabled bool

	send func(title, message string) error
}

// NewNotifier creates a notifier.
func NewNotifier(enabled bool) *Notifier {
	return &Notifier{enabled: enabled, send: beeepNotify}
}

// SetEnabled enables or disables notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled
}

func beeepNotify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// Info shows a notification regardless of the failure setting.
func (n *Notifier) Info(title, message string) error {
	return n.send(title, message)
}

// Change notifies when change moved a device into Failed. It reports
// whether a notification was attempted.
func (n *Notifier) Change(change device.Change) (bool, error) {
	if !n.IsEnabled() {
		return false, nil
	}
	title, message, ok := FailureMessage(change)
	if !ok {
		return false, nil
	}
	if err := n.send(title, message); err != nil {
		return true, fmt.Errorf("sending notification: %w", err)
	}
	return true, nil
}

// FailureMessage returns the notification text for a change that moved a
// device into Failed. ok is false for any other change.
func FailureMessage(change device.Change) (title, message string, ok bool) {
	if change.Kind != device.ChangeUpdated ||
		change.Device.State.Kind != device.StateFailed ||
		change.Previous.State.Kind == device.StateFailed {
		return "", "", false
	}

	action := "connect to"
	if change.Previous.State.Kind == device.StateDisconnecting {
		action = "disconnect from"
	}

	reason := change.Device.State.Reason
	if reason == "" {
		reason = "unknown error"
	}

	title = "Bluetooth"
	message = fmt.Sprintf("Could not %s %s: %s", action, change.Device.DisplayName(), reason)
	return title, message, true
}
