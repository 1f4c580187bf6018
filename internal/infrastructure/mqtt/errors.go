package mqtt

import "errors"

// Sentinel errors for MQTT operations, checkable with errors.Is().
var (
	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected indicates the client is not connected to the broker.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrInvalidTopic indicates an empty or malformed topic.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrInvalidQoS indicates a QoS level outside 0-2.
	ErrInvalidQoS = errors.New("mqtt: invalid qos level")

	// ErrPublishFailed indicates a publish operation failed.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed indicates a subscribe operation failed.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed indicates an unsubscribe operation failed.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")
)
