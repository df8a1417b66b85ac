// Package voice implements the speech side of a practice session: the
// transcript accumulator, the listening controller that owns the recognition
// device, and the playback controller that owns speech synthesis and the
// mouth overlay.
//
// None of the types here are safe for concurrent use. They are driven from a
// single event loop (see package turn); device callbacks and timer expiries
// must be delivered on that loop.
package voice
