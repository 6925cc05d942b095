// Package rules loads the two match rules (primary and secondary modality)
// from the declarative XML rule file and evaluates them against series
// records.
//
// A rule file has a root element with two children, each carrying Modality,
// ScanType, Orientation, and Is3D. Children named Primary and Secondary are
// picked by name; otherwise the first child is primary and the second is
// secondary. Any problem reading or parsing the file surfaces as a
// *ConfigurationError so callers can degrade to an empty batch.
package rules
