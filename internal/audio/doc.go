// Package audio handles raw PCM framing and buffering for voice activity detection.
// It splits an incoming little-endian PCM16 byte stream into fixed-duration frames,
// keeps the most recent frames and their speech decisions in a fixed-capacity ring,
// and encodes finished utterances to WAV for downstream consumers.
package audio
