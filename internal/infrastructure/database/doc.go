// Package database provides SQLite connectivity for manipd.
//
// The database stores move and position history so a rig operator can
// reconstruct what a manipulator did after the fact, even when the
// time-series sink is unavailable.
//
// SQLite is configured for single-writer access with WAL mode and a busy
// timeout; this matches the daemon's access pattern (one writer goroutine,
// occasional reads).
package database
