package core

type SubscriberParams struct {
	MaxConcurrent int
}

const (
	// in seconds to drain in-flight notifications on shutdown
	WaitTime = 20
)
