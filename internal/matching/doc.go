// Package matching pairs functional and anatomical series that belong to the
// same study.
//
// The Engine evaluates the primary and secondary rules against every record,
// links candidates through a shared frame of reference, proposes one pair per
// linked candidate, and keeps the first pair that uses each series UID.
// Accepted pairs from the same study and frame-of-reference group are then
// re-checked with a slice-count swap heuristic, because frame-of-reference
// linkage alone cannot tell two same-frame acquisitions apart.
//
// Matching is deterministic: the same records and rules always produce the
// same pairs in the same order (studies in first-appearance order, then
// generation order within a study).
package matching
