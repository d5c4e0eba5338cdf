package config

import (
	"github.com/knadh/koanf/providers/confmap"
)

// DefaultConfigPath is used when no --config flag is given
const DefaultConfigPath = "~/.lifespan/config.yaml"

func DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"storage": map[string]interface{}{
			"driver": DriverBadger,
			"path":   "~/.lifespan/badger",
		},
		"scheduler": map[string]interface{}{
			"spec":     "0 * * * * *", // second 0 of every minute
			"timezone": "Local",
		},
		"agent": map[string]interface{}{
			"enabled":           true,
			"snooze_delay":      "10m",
			"handshake_timeout": "5s",
			"relay_buffer":      16,
		},
		"notifier": map[string]interface{}{
			"backend": NotifierLog,
			"pushover": map[string]interface{}{
				"api_token":  "",
				"user_key":   "",
				"device":     "",
				"action_url": "",
			},
		},
		"server": map[string]interface{}{
			"enabled": true,
			"addr":    "127.0.0.1:8765",
		},
		"log": map[string]interface{}{
			"debug":        false,
			"dir":          "~/.lifespan/logs",
			"max_size_mb":  10,
			"max_backups":  3,
			"max_age_days": 28,
		},
	}
}

func NewDefaultProvider() *confmap.Confmap {
	return confmap.Provider(DefaultConfig(), ".")
}
