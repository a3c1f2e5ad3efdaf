/*
config.go - Environment-backed configuration

PURPOSE:
  One constructor per concern, each reading only its own BUZO_* vars.
  Load() pulls a .env file into the process environment first; a missing
  default file is not an error so the binary also runs off real env.

SEE ALSO:
  - cmd/server/main.go: assembles these into the running process
*/
package config

import (
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// RemoteConfig locates the backend the gateways talk to.
type RemoteConfig interface {
	APIURL() string
	APIKey() string
	UserID() string
}

// ServerConfig shapes the local HTTP surface.
type ServerConfig interface {
	Addr() string
	CORSOrigins() []string
}

// SyncConfig tunes the queue and the auto-sync loop.
type SyncConfig interface {
	Interval() time.Duration
	MaxAttempts() int
	DBPath() string
}

// Load reads a .env file into the environment. With an empty path it
// tries ".env" and tolerates its absence.
func Load(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	return godotenv.Load(path)
}
