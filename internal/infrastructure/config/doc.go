// Package config handles loading and validating SensorThings bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// The only required setting is sensorthings.base_url; everything else has a
// working default. The MQTT broker hostname is derived from the base URL
// unless explicitly overridden, which matches how FROST deploys its built-in
// broker alongside the HTTP API.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.SensorThings.BaseURL)
package config
