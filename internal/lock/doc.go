// Package lock prevents two orchestrator processes from driving the same
// checkout at once.
//
// TryAcquire takes a non-blocking exclusive flock(2) on a file inside the
// install directory. When the lock is held elsewhere it fails fast and names
// the other running orchestrator processes to help the operator.
package lock
