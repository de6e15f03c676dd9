package notify

import "errors"

var (
	ErrNoBrokers    = errors.New("at least one broker is required")
	ErrNoTopic      = errors.New("topic must not be empty")
	ErrNoGroup      = errors.New("consumer group must not be empty")
	ErrNilSubmitter = errors.New("submitter must not be nil")
	ErrDecode       = errors.New("decode notification")
)
