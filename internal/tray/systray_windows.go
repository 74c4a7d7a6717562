//go:build windows

package tray

import (
	"context"

	"github.com/getlantern/systray"

	"github.com/bluetray/bluetray/internal/device"
)

// Run shows the tray icon and blocks until ctx is cancelled or the user
// picks Quit. It must be called from the main goroutine.
func (p *Presenter) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	systray.Run(func() { p.onReady(ctx) }, cancel)
	return nil
}

func (p *Presenter) onReady(ctx context.Context) {
	systray.SetIcon(iconData)
	systray.SetTitle("Bluetray")
	p.setTooltip = systray.SetTooltip

	about := systray.AddMenuItem(TitleAbout, "Show version and device summary")
	systray.AddSeparator()

	// Pre-allocate device slots (hidden by default)
	widgets := make([]widget, p.opts.MaxDevices)
	items := make([]*systray.MenuItem, p.opts.MaxDevices)
	for i := range items {
		items[i] = systray.AddMenuItemCheckbox("", "", false)
		items[i].Hide()
		widgets[i] = items[i]
	}

	placeholder := systray.AddMenuItem(TitleNoDevices, "")
	placeholder.Disable()
	overflow := systray.AddMenuItem("", "")
	overflow.Disable()
	overflow.Hide()

	systray.AddSeparator()
	refresh := systray.AddMenuItem(TitleRefresh, "Re-read paired devices from Windows")
	quit := systray.AddMenuItem(TitleQuit, "Exit Bluetray")

	p.slots = newSlots(widgets, placeholder, overflow)

	sub := p.registry.Subscribe(device.DefaultSubscriptionBuffer)
	go func() {
		defer sub.Close()
		p.watch(ctx, sub)
	}()

	for i, item := range items {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-item.ClickedCh:
					p.clickDevice(ctx, i)
				}
			}
		}()
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				systray.Quit()
				return
			case <-about.ClickedCh:
				p.clickAbout()
			case <-refresh.ClickedCh:
				go p.clickRefresh(ctx)
			case <-quit.ClickedCh:
				p.quit()
				systray.Quit()
				return
			}
		}
	}()

	p.logger.Info("tray ready", "slots", p.opts.MaxDevices)
}
