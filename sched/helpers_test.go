package sched

import "time"

// timeoutCh returns a channel that fires after a generous bound for
// tests waiting on goroutine-scheduled work to complete.
func timeoutCh() <-chan time.Time {
	return time.After(2 * time.Second)
}

// newCaller returns an un-run Thread suitable only as the caller
// argument to Scheduler.Join/JoinAllChildren from a goroutine that is
// not itself a scheduled Thread (such as a test body).
func newCaller(s *Scheduler) *Thread {
	c, _ := s.Create(func(*Thread, any) any { return nil }, nil, 4096, -1, false, nil)
	return c
}
