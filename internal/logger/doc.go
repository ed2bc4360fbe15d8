// Package logger wraps zap to offer:
//   - a global sugared logger with a console encoder on stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and an atomic level switch for the --log-level flag,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// Services receive a context and extract the logger from it, so names and
// fields such as the run identifier follow the call chain.
package logger
