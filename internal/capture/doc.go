// Package capture reads mono PCM16 audio from the default input device and
// hands it to a segmentation engine.
//
// Device access uses PortAudio and is only compiled with the "portaudio" build
// tag; without it NewMicrophone returns ErrUnavailable.
package capture
