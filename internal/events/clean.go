package events

import "time"

// CleanStart is emitted before a GraphQL request is pruned.
type CleanStart struct {
	Query         string
	OperationName string
}

// CleanFinish is emitted after pruning. Removed counts every field,
// argument, fragment, operation and variable that was dropped.
type CleanFinish struct {
	Query         string
	OperationName string
	Operations    int
	Removed       int
	Err           error
	Duration      time.Duration
}
