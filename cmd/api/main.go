package main

import (
	"context"
	"strings"

	"github.com/go-chi/cors"
	"github.com/spf13/viper"

	"github.com/d4l-data4life/go-chat-gateway/pkg/auth"
	"github.com/d4l-data4life/go-chat-gateway/pkg/config"
	"github.com/d4l-data4life/go-chat-gateway/pkg/metrics"
	"github.com/d4l-data4life/go-chat-gateway/pkg/models"
	"github.com/d4l-data4life/go-chat-gateway/pkg/relay"
	"github.com/d4l-data4life/go-chat-gateway/pkg/server"

	"github.com/d4l-data4life/go-svc/pkg/db"
	"github.com/d4l-data4life/go-svc/pkg/db2"
	"github.com/d4l-data4life/go-svc/pkg/logging"
	"github.com/d4l-data4life/go-svc/pkg/standard"
)

func main() {
	config.SetupEnv()
	config.SetupLogger()
	dbOpts := db2.NewConnection(
		db2.WithDebug(viper.GetBool("DEBUG")),
		db2.WithHost(viper.GetString("DB_HOST")),
		db2.WithPort(viper.GetString("DB_PORT")),
		db2.WithDatabaseSchema(viper.GetString("DB_SCHEMA")),
		db2.WithDatabaseName(viper.GetString("DB_NAME")),
		db2.WithUser(viper.GetString("DB_USER")),
		db2.WithPassword(viper.GetString("DB_PASS")),
		db2.WithSSLMode(viper.GetString("DB_SSL_MODE")),
		db2.WithSSLRootCertPath(viper.GetString("DB_SSL_ROOT_CERT_PATH")),
		db2.WithMigrationFunc(models.MigrationFunc),
		db2.WithMigrationVersion(config.MigrationVersion),
	)
	standard.Main(mainAPI, config.Name, standard.WithPostgresDB2(dbOpts))
}

// mainAPI contains the main service logic - it must finish on runCtx cancelation!
func mainAPI(runCtx context.Context, svcName string) <-chan struct{} {
	port := viper.GetString("PORT")
	corsOptions := config.CorsConfig(strings.Split(viper.GetString("CORS_HOSTS"), " "))
	// Streaming responses stay open for the duration of one upstream
	// completion, so the route timeout must outlast the relay timeout.
	srv := server.NewServer(svcName,
		cors.New(corsOptions),
		viper.GetInt("HTTP_MAX_PARALLEL_REQUESTS"),
		viper.GetDuration("STREAM_REQUEST_TIMEOUT"),
	)

	dieEarly := make(chan struct{})

	tokenValidator, err := newTokenValidator(runCtx)
	if err != nil {
		logging.LogErrorf(err, "failed setting up the token validator")
		close(dieEarly)
		return dieEarly
	}
	defer close(dieEarly)

	engine := relay.NewEngine(db.Get(), relay.Options{
		HistoryLimit:    viper.GetInt("RELAY_HISTORY_LIMIT"),
		ConnectRetries:  viper.GetInt("RELAY_CONNECT_RETRIES"),
		UpstreamTimeout: viper.GetDuration("RELAY_UPSTREAM_TIMEOUT"),
	})

	jwtSecret := []byte(viper.GetString("JWT_SECRET"))
	server.SetupRoutes(srv.Mux(), db.Get(), engine, tokenValidator, jwtSecret)
	metrics.AddBuildInfoMetric()
	return standard.ListenAndServe(runCtx, srv.Mux(), port)
}

// newTokenValidator verifies sessions against a remote JWKS endpoint when one
// is configured and falls back to the shared HS256 secret otherwise.
func newTokenValidator(ctx context.Context) (auth.TokenValidator, error) {
	if keysURL := viper.GetString("JWT_REMOTE_KEYS_URL"); keysURL != "" {
		return auth.NewRemoteKeyStore(ctx, keysURL)
	}
	return auth.NewLocalJWTValidator([]byte(viper.GetString("JWT_SECRET")))
}
