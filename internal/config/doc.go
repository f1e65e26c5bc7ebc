// Package config loads and validates the YAML configuration of the segmenter
// service. Defaults are filled in before decoding, so a file only needs the keys
// it changes.
package config
