/*
env.go - BUZO_* constructors for the config interfaces
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	apiURLEnvName       = "BUZO_API_URL"
	apiKeyEnvName       = "BUZO_API_KEY"
	userIDEnvName       = "BUZO_USER_ID"
	httpAddrEnvName     = "BUZO_HTTP_ADDR"
	corsOriginsEnvName  = "BUZO_CORS_ORIGINS"
	syncIntervalEnvName = "BUZO_SYNC_INTERVAL"
	maxAttemptsEnvName  = "BUZO_MAX_ATTEMPTS"
	dbPathEnvName       = "BUZO_DB_PATH"
)

// =============================================================================
// REMOTE
// =============================================================================

type remoteConfig struct {
	apiURL string
	apiKey string
	userID string
}

func NewRemoteConfig() (RemoteConfig, error) {
	apiURL := os.Getenv(apiURLEnvName)
	if apiURL == "" {
		return nil, errors.New("BUZO_API_URL not found")
	}
	apiURL = strings.TrimRight(apiURL, "/")

	userID := os.Getenv(userIDEnvName)
	if userID == "" {
		return nil, errors.New("BUZO_USER_ID not found")
	}

	return &remoteConfig{
		apiURL: apiURL,
		apiKey: os.Getenv(apiKeyEnvName),
		userID: userID,
	}, nil
}

func (cfg *remoteConfig) APIURL() string { return cfg.apiURL }
func (cfg *remoteConfig) APIKey() string { return cfg.apiKey }
func (cfg *remoteConfig) UserID() string { return cfg.userID }

// =============================================================================
// SERVER
// =============================================================================

type serverConfig struct {
	addr    string
	origins []string
}

func NewServerConfig() (ServerConfig, error) {
	addr := os.Getenv(httpAddrEnvName)
	if addr == "" {
		addr = ":8080"
	}

	origins := []string{"*"}
	if raw := os.Getenv(corsOriginsEnvName); raw != "" {
		origins = origins[:0]
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	return &serverConfig{addr: addr, origins: origins}, nil
}

func (cfg *serverConfig) Addr() string          { return cfg.addr }
func (cfg *serverConfig) CORSOrigins() []string { return cfg.origins }

// =============================================================================
// SYNC
// =============================================================================

type syncConfig struct {
	interval    time.Duration
	maxAttempts int
	dbPath      string
}

func NewSyncConfig() (SyncConfig, error) {
	interval := 30 * time.Second
	if raw := os.Getenv(syncIntervalEnvName); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("BUZO_SYNC_INTERVAL: %w", err)
		}
		if d <= 0 {
			return nil, errors.New("BUZO_SYNC_INTERVAL must be positive")
		}
		interval = d
	}

	maxAttempts := 5
	if raw := os.Getenv(maxAttemptsEnvName); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, errors.New("BUZO_MAX_ATTEMPTS must be a positive integer")
		}
		maxAttempts = n
	}

	dbPath := os.Getenv(dbPathEnvName)
	if dbPath == "" {
		dbPath = "buzo.db"
	}

	return &syncConfig{
		interval:    interval,
		maxAttempts: maxAttempts,
		dbPath:      dbPath,
	}, nil
}

func (cfg *syncConfig) Interval() time.Duration { return cfg.interval }
func (cfg *syncConfig) MaxAttempts() int        { return cfg.maxAttempts }
func (cfg *syncConfig) DBPath() string          { return cfg.dbPath }
