//go:build !windows

package main

import (
	"fmt"
	"os"
)

func reportFatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
}
