//go:build !windows

package main

import (
	"os"
	"syscall"
)

// resetEnergySignals trigger an energy counter reset.
var resetEnergySignals = []os.Signal{syscall.SIGUSR1}
