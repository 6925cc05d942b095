// Package config loads, normalizes, and validates studypair configuration data.
package config
