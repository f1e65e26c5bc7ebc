// Package transcription sends utterances to an HTTP speech-to-text endpoint.
// Requests are multipart forms carrying the utterance as a WAV file plus its
// metadata; failed requests are retried with exponential backoff. Consumer
// plugs the client into the utterance dispatcher.
package transcription
