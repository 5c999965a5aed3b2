package credentials

import (
	"os"
	"sync"

	"github.com/joho/godotenv"

	"taskbridge/internal/utils"
)

// Environment variables consulted for the remote token, in order.
var tokenEnvVars = []string{"TASKBRIDGE_REMOTE_TOKEN", "REMOTE_API_TOKEN"}

var dotenvOnce sync.Once

// loadDotEnv merges a .env file from the working directory into the
// process environment once. Absence is not an error; existing variables
// win over file values.
func loadDotEnv() {
	dotenvOnce.Do(func() {
		if err := godotenv.Load(); err == nil {
			utils.Debugf("loaded .env into environment")
		}
	})
}

// TokenFromEnv returns the first token found in the recognized
// environment variables, after honoring a local .env file.
func TokenFromEnv() string {
	loadDotEnv()
	for _, name := range tokenEnvVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
