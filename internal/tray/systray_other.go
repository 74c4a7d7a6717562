//go:build !windows

package tray

import "context"

// Run returns ErrUnsupported: the tray shell is only wired up on Windows.
// Use headless mode elsewhere.
func (p *Presenter) Run(context.Context) error {
	return ErrUnsupported
}
