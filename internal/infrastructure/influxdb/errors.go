package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when telemetry is off in config.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed is returned by Connect when the server cannot be
	// reached or reports unhealthy.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrWriteFailed wraps every batch failure passed to the SetOnError
	// callback.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
