package config

import (
	"os"

	"github.com/joho/godotenv"

	"dataledge/internal/shared/telemetry"
)

// loadEnvFiles applies variables from the dotenv files that exist. Values
// already in the process environment win, so earlier files also win over
// later ones.
func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		vars, err := godotenv.Read(path)
		if err != nil {
			telemetry.Warn("config.dotenv.parse_failed", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		applied := 0
		for key, val := range vars {
			if _, set := os.LookupEnv(key); set {
				continue
			}
			if err := os.Setenv(key, val); err == nil {
				applied++
			}
		}
		telemetry.Info("config.dotenv.loaded", map[string]any{
			"path":    path,
			"applied": applied,
			"skipped": len(vars) - applied,
		})
	}
}
