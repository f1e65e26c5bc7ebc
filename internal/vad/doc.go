// Package vad turns a stream of PCM16 frames into utterances.
//
// Each frame is classified as speech or non-speech, the decision is stored in a
// ring next to the frame, and the share of speech among the most recent
// decisions (the activation) drives a two-state hysteresis machine. Crossing
// the voice threshold starts a segment seeded with the buffered frames;
// falling to the non-voice threshold pads and closes it. Finished utterances
// are handed to a Sink that must never block the caller of Feed.
package vad
