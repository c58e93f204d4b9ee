package config

import (
	"fmt"
	"runtime"

	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// Build information. Populated at build-time.
var (
	Name      string = "go-chat-gateway"
	Version   string
	Branch    string
	Commit    string
	BuildUser string
	GoVersion = runtime.Version()
)

const (
	// EnvPrefix is a prefix to all ENV variables used in this app
	EnvPrefix = "GO_CHAT_GATEWAY"
	// APIPrefixV1 URL prefix in API version 1
	APIPrefixV1 = "/api/v1"
	// InternalPrefix URL prefix for service-to-service routes
	InternalPrefix = "/internal"
	// MigrationVersion is bumped whenever MigrationFunc changes
	MigrationVersion = "3"

	// ##### GENERAL VARIABLES

	// Debug is a flag used to display debug messages
	Debug = false
	// DebugCORS is a flag used to display CORS debug messages
	DebugCORS = false
	// HumanReadableLogs set to true disables JSON formatting of logging
	HumanReadableLogs = false
	// DefaultHost default host for the service
	DefaultHost = "localhost"
	// DefaultPort default port the service is served on
	DefaultPort = "8080"
	// DefaultCorsHosts default cors hosts for local development
	DefaultCorsHosts = "https://localhost:3000 http://localhost:5173"

	// ##### DATABASE VARIABLES

	// DefaultDBHost default host for the database connection
	DefaultDBHost = "localhost"
	// DefaultDBPort default port for the database connection
	DefaultDBPort = "5440"
	// DefaultDBName default name for the database connection
	DefaultDBName = "go-chat-gateway"
	// DefaultDBUser default user for the database connection
	DefaultDBUser = "postgres"
	// DefaultDBPassword default password for the database connection
	DefaultDBPassword = "postgres"
	// DefaultDBSSLMode default ssl mode for the database connection
	DefaultDBSSLMode = "disable"

	// ##### AUTHENTICATION VARIABLES

	// DefaultJWTSecret is only suitable for local development
	DefaultJWTSecret = "local-dev-jwt-secret-change-me" // #nosec
	// DefaultAuthHeaderName defines the name of the auth header
	DefaultAuthHeaderName = "Authorization"
	// DefaultServiceSecret is a secret used to authenticate requests from other services
	DefaultServiceSecret = ""

	// ##### RELAY VARIABLES

	// DefaultRelayHistoryLimit bounds how many prior messages are sent upstream
	DefaultRelayHistoryLimit = 10
	// DefaultRelayConnectRetries bounds retries of the upstream connection establishment
	DefaultRelayConnectRetries = 3
	// DefaultRelayUpstreamTimeout bounds one full upstream streaming request
	DefaultRelayUpstreamTimeout = "300s"
	// DefaultStreamRequestTimeout is the per-route timeout for streaming endpoints
	DefaultStreamRequestTimeout = "310s"
)

func bindEnvVariable(name string, fallback interface{}) {
	if fallback != "" {
		viper.SetDefault(name, fallback)
	}
	err := viper.BindEnv(name)
	if err != nil {
		// cannot use logging.LogError due to import cycle
		fmt.Printf("Error binding Env Variable: %v", err)
	}
}

// SetupEnv configures app to read ENV variables
func SetupEnv() {
	// .env is optional, real deployments configure through the environment
	_ = godotenv.Load()

	viper.SetEnvPrefix(EnvPrefix)
	// General
	bindEnvVariable("DEBUG", Debug)
	bindEnvVariable("HUMAN_READABLE_LOGS", HumanReadableLogs)
	bindEnvVariable("DEBUG_CORS", DebugCORS)
	bindEnvVariable("HOST", DefaultHost)
	bindEnvVariable("PORT", DefaultPort)
	bindEnvVariable("PREFIX", APIPrefixV1)
	bindEnvVariable("CORS_HOSTS", DefaultCorsHosts)
	bindEnvVariable("HTTP_MAX_PARALLEL_REQUESTS", 8)
	bindEnvVariable("HTTP_REQUEST_TIMEOUT", "60s")
	// Database
	bindEnvVariable("DB_HOST", DefaultDBHost)
	bindEnvVariable("DB_PORT", DefaultDBPort)
	bindEnvVariable("DB_NAME", DefaultDBName)
	bindEnvVariable("DB_SCHEMA", "public")
	bindEnvVariable("DB_USER", DefaultDBUser)
	bindEnvVariable("DB_PASS", DefaultDBPassword)
	bindEnvVariable("DB_SSL_MODE", DefaultDBSSLMode)
	bindEnvVariable("DB_SSL_ROOT_CERT_PATH", "")
	// Authentication
	bindEnvVariable("JWT_SECRET", DefaultJWTSecret)
	bindEnvVariable("JWT_REMOTE_KEYS_URL", "")
	bindEnvVariable("AUTH_HEADER_NAME", DefaultAuthHeaderName)
	bindEnvVariable("SERVICE_SECRET", DefaultServiceSecret)
	// Relay
	bindEnvVariable("RELAY_HISTORY_LIMIT", DefaultRelayHistoryLimit)
	bindEnvVariable("RELAY_CONNECT_RETRIES", DefaultRelayConnectRetries)
	bindEnvVariable("RELAY_UPSTREAM_TIMEOUT", DefaultRelayUpstreamTimeout)
	bindEnvVariable("STREAM_REQUEST_TIMEOUT", DefaultStreamRequestTimeout)
}

// SetupLogger initializes the shared go-svc logger
func SetupLogger() {
	logging.Setup(
		logging.WithDebug(viper.GetBool("DEBUG")),
		logging.WithHumanReadableLogs(viper.GetBool("HUMAN_READABLE_LOGS")),
	)
}

// CorsConfig stores default configuration for CORS middleware
func CorsConfig(corsHosts []string) cors.Options {
	return cors.Options{
		AllowedOrigins:   corsHosts,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-User-Language"},
		ExposedHeaders:   []string{"Link", "X-CSRF-Token"},
		AllowCredentials: true, // header "Access-Control-Allow-Credentials" is not present if this is set to false
		MaxAge:           300,  // Maximum value not ignored by any of major browsers,
		Debug:            viper.GetBool("DEBUG_CORS"),
	}
}
