// Package config handles loading and validating the Hearth daemon
// configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (HEARTH_ prefix)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - The JWT secret must be set before the daemon will start
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - No runtime overhead after initial load
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.Port)
//
// Installation-level settings (name, location, unit system) are not
// part of this file; they live in the persisted core config managed by
// the hub package.
package config
