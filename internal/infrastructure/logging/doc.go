// Package logging is Bluetray's structured logger, a thin layer over
// log/slog.
//
// The tray process has no console on Windows, so it normally logs JSON to
// a file next to its config:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "file"     # stdout, stderr, file
//	  file: "C:/Users/me/AppData/Roaming/bluetray/bluetray.log"
//
// Components take a child logger tagged with their name:
//
//	log := logging.New(cfg.Logging, version)
//	defer log.Close()
//	coord.SetLogger(log.With("component", "coordinator"))
//
// The level is live: editing logging.level in config.yaml takes effect
// without a restart. Never log MQTT or InfluxDB credentials.
package logging
