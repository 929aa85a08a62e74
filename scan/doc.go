// Package scan implements scan sessions: parameter sets, the session state machine and the registry that
// creates, tracks and deletes sessions.
//
// A Session moves through NotStarted, InProgress and then Done or Aborted:
//
//	NotStarted --Start--> InProgress --progress 1.0 / done event--> Done
//	                      InProgress --stop ack / remote failure-->  Aborted
//	Done, Aborted --Start--> InProgress (restart)
//
// Start commits the resolved parameters to the target and asks the remote service to begin the scan.
// It returns as soon as the service accepts the request. From then on, progress, raw data and
// termination arrive as remote events on the dispatcher task, which is the only writer of the session's
// run state. Callers observe the session through its accessors, WaitTillDone, or callbacks; callbacks
// run on a per-session task, never on the dispatcher and never inside the call that registered them.
//
// A session owns its target endpoint from creation until it reaches a terminal state or is deleted.
// Deleting a session invalidates it: every later call returns ErrDeleted.
package scan
