// Package timer schedules delayed, cancellable callbacks for session phases.
package timer

import "time"

// Handle cancels a scheduled callback.
type Handle interface {
	// Stop prevents the callback from running if it has not started yet.
	Stop() bool
}

// Scheduler arms callbacks that run after a delay on their own goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Handle
}

// Real schedules with the runtime timer heap.
type Real struct{}

func (Real) AfterFunc(d time.Duration, f func()) Handle {
	return time.AfterFunc(d, f)
}

// Slot holds at most one pending timer for an owner such as a session.
//
// A Slot is not safe for concurrent use; the owner must guard it with the same
// lock it takes inside the fire callback. time.Timer.Stop cannot recall a
// callback that is already running, so each Arm hands out a token and the
// callback must Claim it under the owner's lock before acting. Cancel and
// re-Arm invalidate outstanding tokens.
type Slot struct {
	sched  Scheduler
	gen    uint64
	armed  bool
	handle Handle
}

func NewSlot(sched Scheduler) *Slot {
	if sched == nil {
		sched = Real{}
	}
	return &Slot{sched: sched}
}

// Arm cancels any pending timer and schedules fire(token) after d.
func (s *Slot) Arm(d time.Duration, fire func(token uint64)) uint64 {
	s.Cancel()
	s.gen++
	token := s.gen
	s.armed = true
	s.handle = s.sched.AfterFunc(d, func() { fire(token) })
	return token
}

// Cancel stops the pending timer, if any.
func (s *Slot) Cancel() {
	if s.handle != nil {
		s.handle.Stop()
		s.handle = nil
	}
	if s.armed {
		s.armed = false
		s.gen++
	}
}

// Claim reports whether token belongs to the live timer and disarms it.
// It returns true at most once per Arm.
func (s *Slot) Claim(token uint64) bool {
	if !s.armed || token != s.gen {
		return false
	}
	s.armed = false
	s.handle = nil
	return true
}

// Pending reports whether a timer is armed and unclaimed.
func (s *Slot) Pending() bool {
	return s.armed
}
