// Package tray renders the device Registry as the Windows tray menu.
//
// BuildMenu turns a Registry snapshot into a Menu model; it is pure and
// holds all layout rules. The Presenter subscribes to Registry changes,
// applies each new Menu to a fixed pool of pre-allocated menu slots and
// forwards clicks to the connection coordinator as Toggle requests.
// Failures are surfaced as a disabled entry and, when enabled, a desktop
// notification.
//
// The tray shell (github.com/getlantern/systray) is only wired up on
// Windows; elsewhere Run returns ErrUnsupported and the application runs
// headless.
package tray
