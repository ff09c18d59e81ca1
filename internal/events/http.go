package events

import (
	"net/http"
	"time"
)

// HTTPStart is published when the pruning endpoint receives a call.
// RequestID matches the X-Request-Id response header.
type HTTPStart struct {
	RequestID int64
	Request   *http.Request
}

// HTTPFinish is published once the response has been written. Requests is
// the number of GraphQL requests in the call, more than one for a batch and
// zero when the body was rejected before parsing.
type HTTPFinish struct {
	RequestID int64
	Request   *http.Request
	Requests  int
	Status    int
	Duration  time.Duration
}
