// Package dispatch delivers finished utterances to consumers without blocking
// the audio path. Each utterance gets its own goroutine, consumers run
// concurrently under a shared limit, and a failing or panicking consumer only
// affects its own delivery.
package dispatch
