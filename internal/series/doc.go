// Package series holds the per-series metadata record fed to the matcher and
// the classifier that derives its scan role, orientation, and volumetric tags
// from raw header fields.
package series
