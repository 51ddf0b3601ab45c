// Package config provides configuration loading and validation for the
// voice bridge. It handles YAML-based configuration with per-section
// validation and conversion to the component configuration types.
package config
