// Package config handles loading and validating RoomGate configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with ROOMGATE_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The API key and broker/InfluxDB credentials should be set via
//     environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load(config.Path())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
