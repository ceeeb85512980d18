package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvPrefix namespaces the environment variables read by the binaries.
const EnvPrefix = "CONEPILOT_"

// LoadEnvFile loads KEY=value pairs from path into the process environment.
// Variables already set in the environment win. A missing file is not an
// error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// GetEnv returns $CONEPILOT_<key> or defaultValue when unset or empty.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvAsBool returns $CONEPILOT_<key> parsed as a bool, or defaultValue
// when unset or unparsable.
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
