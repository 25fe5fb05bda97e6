package call

import "time"

// singleShot is a cancel-and-reschedule timer: at most one pending fire.
// Reset always cancels any pending fire first, so two timers of the same
// concern never coexist. Not safe for concurrent use; the session event
// loop is its only owner.
type singleShot struct {
	t *time.Timer
}

func newSingleShot() *singleShot {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	return &singleShot{t: t}
}

// Reset schedules a fire after d, cancelling any pending fire.
func (s *singleShot) Reset(d time.Duration) {
	s.Stop()
	s.t.Reset(d)
}

// Stop cancels the pending fire, draining an already-delivered tick.
func (s *singleShot) Stop() {
	if !s.t.Stop() {
		select {
		case <-s.t.C:
		default:
		}
	}
}

// C returns the fire channel.
func (s *singleShot) C() <-chan time.Time {
	return s.t.C
}
