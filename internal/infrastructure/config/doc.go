// Package config handles loading and validating the Modbus mapper configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (MODBUSMAPPER_SECTION_KEY)
//   - Overriding with command-line flags
//   - Validation of required fields
//
// Sensitive values (MQTT password, InfluxDB token) should be set via
// environment variables rather than the config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml", config.Overrides{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Mapper.ProfilePath)
package config
