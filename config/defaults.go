package config

import "time"

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			Address: "127.0.0.1",
			Port:    9999,
		},
		PasswordFile:  "passwd",
		AllowListFile: "whitelist",
		PollInterval:  100 * time.Millisecond,
		IOPollWindow:  time.Millisecond,
		WriteTimeout:  5 * time.Second,
		MaxAttempts:   2,
		MaxLineLength: 4096,
		Banner:        "Welcome to the Irongate server!\n",
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		Events: EventsConfig{
			File:             "server.log",
			Format:           "text",
			FailureWindow:    time.Minute,
			FailureThreshold: 20,
		},
		Admin: AdminConfig{
			Address: "127.0.0.1:9998",
		},
	}
}

// ApplyDefaults fills zero values in cfg from Default.
func ApplyDefaults(cfg *Config) {
	d := Default()
	if cfg.Listen.Address == "" {
		cfg.Listen.Address = d.Listen.Address
	}
	if cfg.PasswordFile == "" {
		cfg.PasswordFile = d.PasswordFile
	}
	if cfg.AllowListFile == "" {
		cfg.AllowListFile = d.AllowListFile
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = d.PollInterval
	}
	if cfg.IOPollWindow == 0 {
		cfg.IOPollWindow = d.IOPollWindow
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = d.WriteTimeout
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.MaxLineLength == 0 {
		cfg.MaxLineLength = d.MaxLineLength
	}
	if cfg.Banner == "" {
		cfg.Banner = d.Banner
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = d.Logging.Format
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = d.Logging.Output
	}
	if cfg.Events.Format == "" {
		cfg.Events.Format = d.Events.Format
	}
	if cfg.Events.FailureWindow == 0 {
		cfg.Events.FailureWindow = d.Events.FailureWindow
	}
	if cfg.Events.FailureThreshold == 0 {
		cfg.Events.FailureThreshold = d.Events.FailureThreshold
	}
	if cfg.Admin.Address == "" {
		cfg.Admin.Address = d.Admin.Address
	}
}
