// Package config loads the Lumin agent configuration from a JSON or YAML file,
// fills in defaults relative to the file location and validates that the
// selected drivers have the settings they need.
package config
