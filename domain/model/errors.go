package model

import "errors"

var (
	// ErrPartialResponse is returned when a caller tries to persist a non-200 body.
	ErrPartialResponse = errors.New("only complete 200 responses can be cached")

	// ErrUnknownNamespace is returned for namespaces outside the current set.
	ErrUnknownNamespace = errors.New("unknown cache namespace")

	// ErrWorkerNotReady is returned when the gateway has not been installed and activated yet.
	ErrWorkerNotReady = errors.New("gateway worker not ready")

	// ErrUnknownMessage is returned for control messages with no registered handler.
	ErrUnknownMessage = errors.New("unknown control message type")

	// ErrMalformedMessage is returned when a control message payload cannot be decoded.
	ErrMalformedMessage = errors.New("malformed control message")

	// ErrOptimizerBusy is returned when an optimization job is already running.
	ErrOptimizerBusy = errors.New("optimizer already has a job in flight")

	// ErrOptimizerUnsupported is returned when ffmpeg/ffprobe are not available.
	ErrOptimizerUnsupported = errors.New("video optimization not supported on this host")
)
