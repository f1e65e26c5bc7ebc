// Package sink provides utterance consumers that persist audio locally.
package sink
