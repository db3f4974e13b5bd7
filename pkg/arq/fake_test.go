package arq

import (
	"time"
)

// fakeScheduler records armed timers and fires them on demand.
type fakeScheduler struct {
	timers []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// fire runs the most recently armed timer if it is still active.
func (s *fakeScheduler) fire() bool {
	if len(s.timers) == 0 {
		return false
	}
	t := s.timers[len(s.timers)-1]
	if t.stopped || t.fired {
		return false
	}
	t.fired = true
	t.f()
	return true
}

func (s *fakeScheduler) active() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// wire collects frames written by an engine.
type wire struct {
	frames [][]byte
	err    error
}

func (w *wire) send(frame []byte) error {
	w.frames = append(w.frames, frame)
	return w.err
}

func (w *wire) last() []byte {
	if len(w.frames) == 0 {
		return nil
	}
	return w.frames[len(w.frames)-1]
}
