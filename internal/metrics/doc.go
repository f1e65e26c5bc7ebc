// Package metrics exposes the service's Prometheus instruments and implements
// the recorder interfaces of the vad and dispatch packages.
package metrics
