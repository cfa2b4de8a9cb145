// Package job holds the in-memory registry of synthesis jobs.
//
// A job starts in Processing when it is created and is moved exactly once
// (modulo duplicate callbacks) to Done or Failed. Records live only in memory:
// they disappear when consumed, when their time-to-live lapses, or when the
// store grows past its ceiling.
package job

import "time"

// Status is the externally visible name of a job state.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// State is one of Processing, Done or Failed.
type State interface {
	Status() Status
}

// Outcome is a terminal State. Only outcomes can be patched onto a job,
// which keeps a finished job from reverting to Processing.
type Outcome interface {
	State
	terminal()
}

// Processing marks a job whose synthesis has not been reported yet.
type Processing struct{}

// Done carries the locator of the finished audio.
type Done struct {
	Locator string
}

// Failed carries the reported synthesis or transport error.
type Failed struct {
	Err string
}

func (Processing) Status() Status { return StatusProcessing }
func (Done) Status() Status       { return StatusDone }
func (Failed) Status() Status     { return StatusFailed }

func (Done) terminal()   {}
func (Failed) terminal() {}

// Job is a snapshot of a stored record.
type Job struct {
	ID           string
	State        State
	CreatedAt    time.Time
	LastAccessAt time.Time
}

// Status returns the status of the job's current state.
func (j Job) Status() Status {
	if j.State == nil {
		return StatusProcessing
	}
	return j.State.Status()
}
