//go:build windows

package main

import "os"

// resetEnergySignals is empty: Windows has no user signals.
var resetEnergySignals []os.Signal
