// Package domain holds scheduler record types and ports
package domain

import "time"

// HeartbeatName identifies the poller heartbeat row
const HeartbeatName = "poller"

// TickStats summarizes one scheduler tick
type TickStats struct {
	Eligible     int
	Dispatch     int
	InFlight     int
	Polled       int
	Failed       int
	Emitted      int
	Closed       int
	Deduped      int
	BaselineEcho int
	PrevEcho     int
}

// Heartbeat is the row the scheduler maintains for liveness checks.
// The two echo totals are kept apart so the health surface can report
// which invariant a nonzero count belongs to
type Heartbeat struct {
	Name              string
	LastTickAt        time.Time
	NextTickAt        time.Time
	LastError         string
	Emitted           int
	Closed            int
	BaselineEchoTotal int
	PrevEchoTotal     int
}
