// Package patchstar drives a Scientifica PatchStar micromanipulator over a
// serial link.
//
// The controller speaks a line-oriented request/response protocol with no
// asynchronous completion events: every state observation is a fresh
// synchronous round trip. The package is therefore built around polling.
//
// # Architecture
//
//	┌────────────┐        ┌─────────────┐        ┌───────────┐
//	│ Manipulator│───────►│   Driver    │───────►│   serial  │──► controller
//	│  (facade)  │        │ (protocol)  │        │ transport │
//	└─────┬──────┘        └─────────────┘        └───────────┘
//	      │ ▲
//	      │ └── Monitor (background position poll, adaptive interval)
//	      └──── Move (one in-flight move and its memoized outcome)
//
// # Key Responsibilities
//
//   - Encode commands (POS, TOP, ABS, STOP, S, DATE, RESET) and decode replies
//   - Track one in-flight move and resolve it to succeeded or failed
//   - Poll position in the background and publish changes exactly once
//   - Serialize all device access behind a single exclusivity lock
//
// # Concurrency
//
// Two threads of control share the device: the caller (moves, stops,
// on-demand reads) and the Monitor's polling goroutine. Both serialize
// through the Manipulator's mutex. Composite operations use unexported
// *Locked variants instead of a reentrant lock. Change notifications are
// never delivered while the lock is held, so observers may safely call back
// into the Manipulator.
//
// # Units
//
// The controller reports integer positions in micrometre-resolution device
// units (RawPosition). The facade exposes physical metres (Position) via a
// per-axis scale factor, 1e-7 m per device unit by default.
package patchstar
