// Package stream manages per-stream sessions. Every session owns its own
// segmentation engine, orders incoming packets by sequence number and is
// removed when closed or after a period of inactivity.
package stream
