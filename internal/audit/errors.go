package audit

import "errors"

// ErrRecorderClosed is returned when writing to a closed Recorder.
var ErrRecorderClosed = errors.New("audit: recorder closed")
