//go:build windows

package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// reportFatal shows a message box: a tray build has no console to print to.
func reportFatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)

	text, err := windows.UTF16PtrFromString(msg)
	if err != nil {
		return
	}
	caption, _ := windows.UTF16PtrFromString("Bluetray")
	windows.MessageBox(0, text, caption, windows.MB_OK|windows.MB_ICONERROR) //nolint:errcheck // nothing left to report to
}
