// Package recommendation turns per-contact opportunities into ranked,
// deduplicated campaign recommendations and, on the automatic path, into
// pending automation tasks awaiting human approval.
//
// Aggregate is pure. Service wraps it with quota checks, a per-day cache and
// an optional snapshot archive.
package recommendation
