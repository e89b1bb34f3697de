// Package quota derives a user's daily sending tier and enforces the
// throttles that keep automation inside provider limits.
//
// Usage is counted per UTC day. The guard is consulted before
// recommendations are generated, before tasks are created, and before every
// campaign email is dispatched. Refusals are synchronous and carry no side
// effects.
package quota
