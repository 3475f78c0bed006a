package config

import (
	"github.com/joho/godotenv"
)

// DefaultEnvFile is loaded when no path is given.
const DefaultEnvFile = ".env"

// LoadEnv reads KEY=value pairs from the given files into the process
// environment. Variables that are already set are left alone. A missing
// file is reported as an error satisfying os.IsNotExist.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{DefaultEnvFile}
	}
	return godotenv.Load(paths...)
}
