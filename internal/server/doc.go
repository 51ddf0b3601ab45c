// Package server implements the HTTP API for controlling and monitoring the
// voice bridge: call start/end/mute, transcript access, health, statistics
// and Prometheus metrics.
package server
