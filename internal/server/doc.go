// Package server implements the ingest surfaces and the monitoring API.
//
// The UDP server receives TLV packets (see package protocol) and routes each
// stream to a fixed worker so its audio reaches the engine in arrival order.
// The HTTP server exposes the JSON monitoring endpoints, Prometheus metrics and
// a WebSocket ingest endpoint. The gRPC server only carries the standard health
// service.
package server
