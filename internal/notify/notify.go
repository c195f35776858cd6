// Package notify bridges job outcomes to desktop notifications.
package notify

import (
	"sync"

	"github.com/gen2brain/beeep"

	"assessment-backend/internal/shared/telemetry"
)

const appTitle = "Risk Assessment"

// Bridge emits completion and failure notices. Notices are suppressed while
// the application reports itself foregrounded, since the user already sees
// the outcome on screen.
type Bridge struct {
	mu         sync.Mutex
	enabled    bool
	foreground func() bool
}

// NewBridge constructs a disabled bridge. foreground may be nil, in which
// case the application is assumed backgrounded and notices always fire.
func NewBridge(foreground func() bool) *Bridge {
	return &Bridge{foreground: foreground}
}

// Enable turns the bridge on. Calling it repeatedly is a no-op; there is no
// permission prompt to re-trigger.
func (b *Bridge) Enable() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = true
}

// Enabled reports whether notices will be emitted.
func (b *Bridge) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// Completed emits a completion notice.
func (b *Bridge) Completed(projectName string) {
	msg := "Your risk assessment is ready"
	if projectName != "" {
		msg = "Risk assessment for " + projectName + " is ready"
	}
	b.send(msg, false)
}

// Failed emits a failure notice.
func (b *Bridge) Failed(message string) {
	if message == "" {
		message = "Risk assessment generation failed"
	}
	b.send(message, true)
}

func (b *Bridge) send(message string, alert bool) {
	b.mu.Lock()
	enabled := b.enabled
	foreground := b.foreground
	b.mu.Unlock()

	if !enabled {
		return
	}
	if foreground != nil && foreground() {
		return
	}

	var err error
	if alert {
		err = beeep.Alert(appTitle, message, "")
	} else {
		err = beeep.Notify(appTitle, message, "")
	}
	if err != nil {
		telemetry.Error("notify.send_failed", map[string]any{"error": err.Error()})
	}
}
