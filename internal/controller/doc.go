// Package controller maps room-controller IDs to live network addresses and
// dispatches commands to them.
//
// Controllers are embedded devices that answer a plain-text HTTP protocol and
// advertise themselves under a discovery hostname. Their IP address changes
// over time, so the package keeps a cached address per controller and repairs
// it in the background whenever a send fails.
//
// # Components
//
//	┌──────────────┐   trigger   ┌──────────────┐
//	│  Dispatcher  │────────────▶│  Scheduler   │
//	│ (dispatch)   │             │ (bounded)    │
//	└──────┬───────┘             └──────┬───────┘
//	       │ cached address             │ resolve
//	       ▼                            ▼
//	┌──────────────┐   set/clear ┌──────────────┐
//	│   Registry   │◀────────────│   Resolver   │
//	│ (one mutex)  │             │ (discovery)  │
//	└──────────────┘             └──────▲───────┘
//	                                    │
//	                      ┌─────────────┴─────────────┐
//	                      │ Refresher / WarmUp        │
//	                      │ (periodic and startup)    │
//	                      └───────────────────────────┘
//
// # Non-blocking dispatch
//
// Dispatch never waits for discovery. A controller without a cached address
// reports ErrNotReady and a resolution is queued on the Scheduler. A failed
// send clears the cached address, queues one resolution and reports
// ErrConnectionFailed. Callers retry; Dispatch has no internal retry loop.
//
// # Thread Safety
//
// All exported types are safe for concurrent use. The Registry lock is never
// held across network I/O.
package controller
