package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.DatabasePath == "" && cfg.Storage.Backend == "sqlite" {
		cfg.Storage.DatabasePath = "/usr/local/var/rehydra/data/maps.db"
	}
	if cfg.Storage.DatabasePath == "" && cfg.Storage.Backend == "bolt" {
		cfg.Storage.DatabasePath = "/usr/local/var/rehydra/data/maps.bolt"
	}
	if cfg.Encryption.Provider == "" {
		cfg.Encryption.Provider = "static"
	}
	if cfg.Detector.Mode == "" {
		cfg.Detector.Mode = "regex"
	}
	if cfg.Detector.TimeoutSeconds == 0 {
		cfg.Detector.TimeoutSeconds = 30
	}
}
