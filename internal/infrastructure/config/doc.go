// Package config loads and validates Homelink Core configuration.
//
// Configuration comes from three layers, later layers overriding earlier ones:
//
//  1. Hardcoded defaults
//  2. A YAML file (configs/config.yaml by default)
//  3. Environment variables (HOMELINK_SECTION_KEY)
//
// The controller section carries up to two candidate base addresses for the
// remote controller plus one bearer token; connection selection between them
// is the hass package's job, not this package's.
package config
