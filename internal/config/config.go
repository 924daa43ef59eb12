package config

import (
	"os"
	"strings"
)

type Config struct {
	AppPort string

	GraphClientID     string
	GraphClientSecret string
	GraphAuthority    string
	GraphRedirectURL  string
	GraphScopes       []string

	TokenEncryptionKey string

	ServiceAPIKey string

	RedisAddr     string
	RedisPassword string

	DatabaseDSN string
}

func Load() Config {

	cfg := Config{

		AppPort: os.Getenv("APP_PORT"),

		GraphClientID:     os.Getenv("MSGRAPH_CLIENT_ID"),
		GraphClientSecret: os.Getenv("MSGRAPH_CLIENT_SECRET"),
		GraphAuthority:    os.Getenv("MSGRAPH_AUTHORITY"),
		GraphRedirectURL:  os.Getenv("MSGRAPH_REDIRECT_URL"),
		GraphScopes:       splitScopes(os.Getenv("MSGRAPH_SCOPES")),

		TokenEncryptionKey: os.Getenv("TOKEN_ENCRYPTION_KEY"),

		ServiceAPIKey: os.Getenv("SERVICE_API_KEY"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		DatabaseDSN: os.Getenv("DATABASE_DSN"),
	}

	if cfg.GraphAuthority == "" {
		cfg.GraphAuthority = "https://login.microsoftonline.com/common/v2.0"
	}

	if len(cfg.GraphScopes) == 0 {
		cfg.GraphScopes = []string{
			"openid",
			"profile",
			"offline_access",
			"User.Read",
		}
	}

	return cfg

}

// splitScopes parses a space-separated scope list from the environment.
func splitScopes(raw string) []string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
