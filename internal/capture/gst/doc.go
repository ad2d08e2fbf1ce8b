// Package gst is a capture backend built on GStreamer. The screen comes
// from an X11/Wayland source element, system audio from the PulseAudio
// monitor, and both encoders are GStreamer elements feeding app sinks.
//
// The backend is compiled only with the gstreamer build tag:
//
//	go build -tags gstreamer ./cmd/screenrec
//
// Without the tag the package is empty and the backend is not registered.
package gst
