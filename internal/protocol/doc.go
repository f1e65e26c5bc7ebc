// Package protocol implements the TLV packets used to stream PCM audio over UDP.
// A stream is opened with its sample rate and label, carries sequenced audio
// packets, and is closed explicitly or by timeout.
package protocol
