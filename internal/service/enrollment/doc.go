// Package enrollment drives contacts through campaign email sequences.
//
// An enrollment is an explicit state machine: pending, active, then one of
// completed, cancelled or failed. A periodic tick calls Process for every
// non-terminal enrollment. Process holds a per-enrollment lock, re-reads the
// record, applies as many transitions as are due, sends each step at most
// once and commits with an optimistic version check. Ticks that find
// nothing due write nothing.
package enrollment
