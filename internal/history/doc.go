// Package history stores manipulator move and position history in SQLite.
//
// Each resolved move is recorded with its target, outcome, and timing so an
// operator can audit what the manipulator did during an experiment. Position
// changes are sampled into a separate table, providing a local trail even
// when the time-series database is unavailable.
//
// All timestamps are UTC. Implementations are safe for concurrent use.
package history
