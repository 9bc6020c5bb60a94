// venusbridge polls a Marstek Venus battery over its local UDP JSON-RPC API
// and republishes the telemetry to an MQTT broker. Mode changes requested
// over MQTT or the HTTP API are sent to the device and verified.
//
// Usage:
//
//	venusbridge [-config path]
//	venusbridge -issue-token <subject> [-role viewer|operator] [-ttl minutes]
//	venusbridge -version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/venus-bridge/migrations"

	"github.com/nerrad567/venus-bridge/internal/api"
	"github.com/nerrad567/venus-bridge/internal/audit"
	"github.com/nerrad567/venus-bridge/internal/auth"
	"github.com/nerrad567/venus-bridge/internal/infrastructure/config"
	"github.com/nerrad567/venus-bridge/internal/infrastructure/database"
	"github.com/nerrad567/venus-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/venus-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/venus-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/venus-bridge/internal/poller"
	"github.com/nerrad567/venus-bridge/internal/retry"
	"github.com/nerrad567/venus-bridge/internal/transition"
	"github.com/nerrad567/venus-bridge/internal/venus"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// errUsage marks command-line mistakes; the flag package has already
// printed the details.
var errUsage = errors.New("invalid command line")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		logging.Bootstrap(version).Error("venusbridge exited", "error", err)
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	configPath  string
	issueToken  string
	role        string
	ttlMinutes  int
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("venusbridge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", getConfigPath(), "path to config.yaml")
	fs.StringVar(&opts.issueToken, "issue-token", "", "print an API token for `subject` and exit")
	fs.StringVar(&opts.role, "role", string(auth.RoleOperator), "role for -issue-token (viewer or operator)")
	fs.IntVar(&opts.ttlMinutes, "ttl", 0, "token lifetime in minutes (default security.jwt.access_token_ttl)")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return opts, err
		}
		return opts, fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//   - args: Command-line arguments without the program name
//   - stdout: Destination for -version and -issue-token output
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	if opts.showVersion {
		fmt.Fprintf(stdout, "venusbridge %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if opts.issueToken != "" {
		return issueToken(stdout, cfg, opts)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting venus bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", opts.configPath,
	)

	return serve(ctx, cfg, log)
}

// issueToken prints a signed bearer token for the control API.
func issueToken(w io.Writer, cfg *config.Config, opts options) error {
	ttl := opts.ttlMinutes
	if ttl <= 0 {
		ttl = cfg.Security.JWT.AccessTokenTTL
	}
	token, err := auth.GenerateAccessToken(opts.issueToken, auth.Role(opts.role), cfg.Security.JWT.Secret, ttl)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	fmt.Fprintln(w, token)
	return nil
}

// serve wires the components and runs the poll loop until ctx is cancelled.
// Deferred closes run in reverse order: API, InfluxDB, MQTT, database.
func serve(ctx context.Context, cfg *config.Config, log *logging.Logger) error { //nolint:gocognit,gocyclo // linear startup sequence
	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix, cfg.Device.ID)

	// Transition history (optional)
	var (
		db      *database.DB
		history *transition.SQLiteHistory
		trail   *audit.SQLiteRepository
	)
	if cfg.Database.Enabled {
		var err error
		db, err = database.Open(ctx, database.ConfigFrom(cfg.Database))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		history = transition.NewSQLiteHistory(db.DB)
		trail = audit.NewSQLiteRepository(db.DB)
		log.Info("transition history enabled", "path", cfg.Database.Path)
	} else {
		log.Info("transition history disabled")
	}

	// MQTT is the one mandatory connection.
	mqttClient, err := mqtt.Connect(ctx, cfg.MQTT, topics)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.Component("mqtt"))
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"data_topic", topics.Data(),
	)

	// Telemetry sink (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	gateway := venus.NewClient(venus.Config{
		Host:    cfg.Device.Host,
		Port:    cfg.Device.Port,
		Timeout: cfg.RequestTimeout(),
		RPCID:   cfg.Device.RPCID,
	})
	log.Info("device gateway ready", "address", gateway.Addr(), "device_id", cfg.Device.ID)

	var recorder transition.Recorder
	if history != nil {
		recorder = history
	}
	controller := transition.NewController(gateway, transition.Config{
		DeviceID:       cfg.Device.ID,
		AutoSettle:     cfg.AutoSettle(),
		ManualSettle:   cfg.ManualSettle(),
		VerifySchedule: retry.Schedule(cfg.VerifySchedule()),
		RestoreDelay:   cfg.RestoreDelay(),
	}, recorder, log.Component("transition"))

	deps := poller.Deps{
		Source:      gateway,
		Publisher:   mqttClient,
		Events:      mqttClient,
		Transitions: controller,
		Logger:      log.Component("poller"),
	}
	if influxClient != nil {
		deps.Sink = influxClient
	}

	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log.Component("websocket"))
		go hub.Run(ctx)
		deps.Observer = hub
	}

	loop, err := poller.New(deps, poller.Options{
		Topics:   topics,
		Interval: cfg.PollInterval(),
		QoS:      byte(cfg.MQTT.QoS),
		Retain:   cfg.MQTT.Retain,
	})
	if err != nil {
		return fmt.Errorf("creating poll loop: %w", err)
	}

	var modeHandler mqtt.MessageHandler = loop.HandleModeCommand
	if trail != nil {
		modeHandler = auditedModeHandler(loop, trail, log.Component("audit"))
	}
	if err := mqttClient.Subscribe(topics.ModeCommand(), byte(cfg.MQTT.QoS), modeHandler); err != nil {
		log.Warn("mode command subscription failed, MQTT mode requests disabled",
			"topic", topics.ModeCommand(),
			"error", err,
		)
	}

	if cfg.API.Enabled {
		server, err := startAPI(ctx, cfg, log, loop, gateway, history, trail, db, mqttClient, influxClient, hub)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	log.Info("initialisation complete")
	if err := loop.Run(ctx); err != nil {
		return fmt.Errorf("poll loop: %w", err)
	}

	log.Info("venus bridge stopped")
	return nil
}

// startAPI builds and starts the HTTP server. Optional collaborators are
// passed through only when present so nil pointers never hide in interfaces.
func startAPI(
	ctx context.Context,
	cfg *config.Config,
	log *logging.Logger,
	loop *poller.Poller,
	gateway *venus.Client,
	history *transition.SQLiteHistory,
	trail *audit.SQLiteRepository,
	db *database.DB,
	mqttClient *mqtt.Client,
	influxClient *influxdb.Client,
	hub *api.Hub,
) (*api.Server, error) {
	checks := map[string]api.HealthChecker{"mqtt": mqttClient}
	deps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log.Component("api"),
		Controller:  loop,
		Device:      gateway,
		Broker:      mqttClient,
		Checks:      checks,
		ExternalHub: hub,
		Version:     version,
	}
	if history != nil {
		deps.History = history
	}
	if trail != nil {
		deps.Audit = trail
	}
	if db != nil {
		deps.Database = db
		checks["database"] = db
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}

	server, err := api.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting API server: %w", err)
	}
	if cfg.Security.JWT.Secret == "" {
		log.Warn("API running without authentication; set security.jwt.secret to require tokens")
	}
	return server, nil
}

// getConfigPath returns the configuration file path.
// Uses VENUSBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VENUSBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the startup connections.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database to check (nil when history is disabled)
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (nil when disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
