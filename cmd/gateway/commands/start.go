package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/emmdurin/georchestra-gateway/internal/logger"
	"github.com/emmdurin/georchestra-gateway/pkg/accounts"
	"github.com/emmdurin/georchestra-gateway/pkg/config"
	"github.com/emmdurin/georchestra-gateway/pkg/directory"
	"github.com/emmdurin/georchestra-gateway/pkg/directory/ldap"
	"github.com/emmdurin/georchestra-gateway/pkg/directory/memory"
	dirsql "github.com/emmdurin/georchestra-gateway/pkg/directory/sql"
	"github.com/emmdurin/georchestra-gateway/pkg/events"
	"github.com/emmdurin/georchestra-gateway/pkg/events/rabbitmq"
	"github.com/emmdurin/georchestra-gateway/pkg/gateway"
	"github.com/emmdurin/georchestra-gateway/pkg/metrics"
	promadapters "github.com/emmdurin/georchestra-gateway/pkg/metrics/prometheus"
	"github.com/emmdurin/georchestra-gateway/pkg/security/token"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway",
	Long: `Start the gateway with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/georchestra-gateway/config.yaml.

Examples:
  # Start with default config location
  gateway start

  # Start with custom config file
  gateway start --config /etc/georchestra/gateway.yaml

  # Start with environment variable overrides
  GATEWAY_LOGGING_LEVEL=DEBUG gateway start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("configuration loaded", "source", getConfigSource(GetConfigFile()))

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("metrics enabled")
	}

	dir, err := buildDirectory(cfg)
	if err != nil {
		return err
	}

	sink, closeSink, err := buildSink(cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	manager := accounts.NewManager(dir, sink, promadapters.NewAccountMetrics())

	authenticator, err := buildAuthenticator(cfg)
	if err != nil {
		return err
	}

	pipeline := gateway.NewPipeline(
		gateway.PipelineConfig{
			PreauthEnabled:            cfg.Security.Preauth.Enabled,
			CreateNonExistingAccounts: cfg.Security.Preauth.CreatesUsers(),
		},
		authenticator,
		gateway.NewDefaultMapper(),
		manager,
		promadapters.NewResolutionMetrics(),
	)

	server, err := gateway.NewServer(cfg.Server, pipeline, nil)
	if err != nil {
		return err
	}

	logger.Info("starting gateway",
		"port", cfg.Server.Port,
		"preauth", cfg.Security.Preauth.Enabled,
		"auto_create_accounts", cfg.Security.Preauth.CreatesUsers(),
		logger.KeyBackend, string(cfg.Directory.Backend),
	)

	return server.Start(ctx)
}

// buildDirectory creates the configured directory backend.
func buildDirectory(cfg *config.Config) (directory.Gateway, error) {
	switch cfg.Directory.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory directory: accounts will not survive a restart")
		return memory.New(), nil
	case config.BackendLDAP:
		return ldap.New(cfg.Directory.LDAP)
	case config.BackendSQL:
		return dirsql.New(&cfg.Directory.SQL)
	default:
		return nil, fmt.Errorf("unsupported directory backend: %s", cfg.Directory.Backend)
	}
}

// buildSink creates the event sink: RabbitMQ when enabled, the log sink
// otherwise. The returned close function is a no-op for the log sink.
func buildSink(cfg *config.Config) (events.Sink, func(), error) {
	if !cfg.Events.EnableRabbitmqEvents {
		return events.NewLogSink(), func() {}, nil
	}
	sink, err := rabbitmq.New(cfg.Events.RabbitMQ)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	return sink, func() {
		if err := sink.Close(); err != nil {
			logger.Error("rabbitmq close error", logger.Err(err))
		}
	}, nil
}

// buildAuthenticator creates the bearer-token authenticator when a token
// secret is configured, nil otherwise.
func buildAuthenticator(cfg *config.Config) (gateway.Authenticator, error) {
	if cfg.Security.Token.Secret == "" {
		return nil, nil
	}
	service, err := token.NewService(token.Config{
		Secret:   cfg.Security.Token.Secret,
		Issuer:   cfg.Security.Token.Issuer,
		Duration: cfg.Security.Token.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token configuration: %w", err)
	}
	return token.NewBearerAuthenticator(service), nil
}
