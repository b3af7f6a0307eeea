// Package serial provides line-oriented access to the manipulator's serial link.
//
// The PatchStar controller speaks a strict request/response protocol: the
// host writes a carriage-return-terminated command and reads a single
// carriage-return-terminated reply. This package owns only that primitive;
// command grammar and reply parsing live in the patchstar package.
//
// Reads carry an overall deadline. A reply that does not terminate within
// the configured window fails with ErrTimeout, which the protocol driver
// propagates unmodified.
//
// A Port is not safe for concurrent use; the protocol driver serializes all
// access behind its own lock.
package serial
