// Package logging provides structured logging for manipd, built on
// log/slog.
//
// Every entry carries service and version attributes; subsystems tag their
// entries via Logger.Component. Output encoding, destination, and level come
// from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log secrets, tokens, or credentials.
package logging
