package mqtt

import "errors"

// Domain errors for MQTT operations.
var (
	// ErrNotConnected is returned when the client is not connected.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the initial connection fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish fails or times out.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe fails or times out.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned for QoS levels above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrPayloadTooLarge is returned for payloads above 1 MiB.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")

	// ErrUnknownCommand is returned by dispatchers for unrecognised names.
	ErrUnknownCommand = errors.New("mqtt: unknown command")
)
