// Package notify delivers short operator-facing messages.
//
// Every component reports failures through the narrow Sink interface.
// Delivery is fire-and-forget: sinks log their own errors and never fail
// the caller. Implementations cover a helper command (e.g. an XMPP or
// chat notifier), an HTTP webhook and the process log.
package notify
