package bl0910

import (
	"log"
	"sync"
	"time"
)

// maxResidual bounds how many stray bytes are discarded after actions run.
// SPI always reports input as available.
const maxResidual = 64

// Action is a deferred operation run between scan steps. Errors are logged;
// actions are never retried.
type Action func() error

type actionQueue struct {
	mu      sync.Mutex
	actions []Action
}

func (q *actionQueue) push(a Action) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.actions = append(q.actions, a)
	return len(q.actions)
}

// take removes and returns every queued action in insertion order.
func (q *actionQueue) take() []Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	actions := q.actions
	q.actions = nil
	return actions
}

func (q *actionQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

// Enqueue defers a until the end of the next scan step and returns the new
// queue length.
func (d *Device) Enqueue(a Action) int {
	return d.actions.push(a)
}

// Pending returns the number of queued actions.
func (d *Device) Pending() int {
	return d.actions.len()
}

// ResetEnergy schedules a device reset, clearing the energy counters.
func (d *Device) ResetEnergy() int {
	return d.Enqueue(d.resetEnergy)
}

// handleActions runs every queued action, then discards whatever the device
// sent back and flushes the link.
func (d *Device) handleActions() {
	actions := d.actions.take()
	if len(actions) == 0 {
		return
	}

	for i, a := range actions {
		log.Printf("HandleActionCallback[%d]...", i)
		if err := a(); err != nil {
			log.Printf("Deferred action %d failed: %v", i, err)
		}
	}

	for i := 0; i < maxResidual && d.t.Available(); i++ {
		if _, err := d.t.ReadByte(); err != nil {
			break
		}
	}

	if err := d.t.Flush(); err != nil {
		log.Printf("Error flushing after actions: %v", err)
	}
}

func (d *Device) resetEnergy() error {
	if err := d.writeRegister(RegUsrWrProt, unlockKey); err != nil {
		return err
	}
	if err := d.writeRegister(RegSoftReset, softResetKey); err != nil {
		return err
	}
	time.Sleep(time.Millisecond)
	if err := d.t.Flush(); err != nil {
		return err
	}
	log.Printf("Device reset with init command.")
	return nil
}
