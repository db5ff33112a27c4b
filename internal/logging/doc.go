// Package logging provides slog module loggers with per-module levels.
//
// Initialize once at startup, then ask for a logger per module:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{"switcher": "debug"},
//	})
//	logger := logging.GetLogger("switcher")
//	logger.Debug("Gate suppressed callback", "input_type", "surface")
//
// Records go to stdout and, when journald is reachable, to the systemd
// journal under the identifier "videofx". Attributes become upper-case
// journal fields, so they can be filtered:
//
//	journalctl -t videofx MODULE=switcher INPUT_TYPE=bitmap
//
// Levels can be changed at runtime with SetLevels; loggers already handed
// out pick the change up because each holds a slog.LevelVar.
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	switcher = "debug"
//	executor = "warn"
package logging
