// Package config handles loading, validating and watching Bluetray configuration.
//
// This package manages:
//   - Loading configuration from a YAML file (optional; defaults apply when absent)
//   - Overriding with BLUETRAY_* environment variables
//   - Validation of gateway, timing and presenter settings
//   - Reloading the file on change for live-tunable settings
//
// Security Considerations:
//   - MQTT and InfluxDB credentials should be set via environment variables
//   - The local API binds to loopback by default and has no authentication
//
// Usage:
//
//	cfg, err := config.Load(config.DefaultPath())
//	if err != nil {
//	    return fmt.Errorf("loading config: %w", err)
//	}
//	fmt.Println(cfg.Bluetooth.Cooldown)
//
// Only bluetooth.cooldown and logging.level are applied on reload; every
// other section is read once at startup.
package config
