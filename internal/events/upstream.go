package events

import "time"

// UpstreamStart is emitted before a pruned request is forwarded.
type UpstreamStart struct {
	URL string
}

// UpstreamFinish is emitted when the upstream response has been received or
// the call failed.
type UpstreamFinish struct {
	URL      string
	Status   int
	Err      error
	Duration time.Duration
}
