// Gray Logic Node - device-side control plane
//
// This is the entry point for a Gray Logic edge node. The node keeps a
// session to the site MQTT broker, advertises its presence through a
// retained status record and executes remote commands (firmware update,
// factory erase, info report) received on its command topic.
//
// One goroutine drives the node: a ticker calls Session.Tick, which either
// reconnects or drains queued broker messages into the command processor.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/gray-logic-node/internal/agent"
	"github.com/nerrad567/gray-logic-node/internal/diagnostics"
	"github.com/nerrad567/gray-logic-node/internal/firmware"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-node/internal/node"
	"github.com/nerrad567/gray-logic-node/internal/platform"
	"github.com/nerrad567/gray-logic-node/internal/process"
	"github.com/nerrad567/gray-logic-node/internal/settings"
	"github.com/nerrad567/gray-logic-node/internal/sysinfo"
	"github.com/nerrad567/gray-logic-node/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "/etc/graylogic/node.yaml"

// storeTimeout bounds startup settings writes.
const storeTimeout = 5 * time.Second

func main() {
	flags := pflag.NewFlagSet("graylogic-node", pflag.ContinueOnError)
	configFlag := flags.StringP("config", "c", "", "path to the configuration file (default $GRAYLOGIC_NODE_CONFIG or "+defaultConfigPath+")")
	showVersion := flags.BoolP("version", "v", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if *showVersion {
		fmt.Printf("graylogic-node %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, getConfigPath(*configFlag)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the node and drives it until ctx is cancelled.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting Gray Logic Node",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	identity := node.Identity{DeviceID: cfg.Device.ID, Version: version}
	if cfg.Device.Version != "" {
		identity.Version = cfg.Device.Version
	}

	log = logging.New(cfg.Logging, identity.Version).With("device_id", identity.DeviceID)
	log.Info("configuration loaded", "path", configPath)

	// Persisted settings
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	store := settings.NewSQLiteStore(db.DB)
	bootCount := incrementBootCount(ctx, store, log)
	log.Info("database ready", "path", cfg.Database.Path, "boot_count", bootCount)

	// Telemetry (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			log.Warn("InfluxDB unavailable, continuing without telemetry", "error", err)
			influxClient = nil
		} else {
			influxClient.SetOnError(func(writeErr error) {
				log.Warn("InfluxDB write failed", "error", writeErr)
			})
			defer influxClient.Close() //nolint:errcheck // Close is idempotent
			log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL)
		}
	}

	// Collaborators
	runner := process.NewRunner()
	runner.SetLogger(log.With("component", "process"))

	probe := sysinfo.New(cfg.Node.Interface)
	probe.SetLogger(log.With("component", "sysinfo"))
	probe.SetRunner(runner)

	updater := firmware.New(firmware.Config{
		DeviceID:     identity.DeviceID,
		Version:      identity.Version,
		ImagePath:    cfg.Update.ImagePath,
		ApplyCommand: cfg.Update.ApplyCommand,
	})
	updater.SetLogger(log.With("component", "firmware"))
	updater.SetRunner(runner)

	restarter, err := platform.New(cfg.Node.RestartMode)
	if err != nil {
		return fmt.Errorf("creating restarter: %w", err)
	}
	restarter.SetLogger(log.With("component", "platform"))

	agentOpts := agent.Options{
		DeviceID:     identity.DeviceID,
		Version:      identity.Version,
		Logger:       log.With("component", "agent"),
		Store:        store,
		Runner:       runner,
		EraseCommand: cfg.Node.EraseCommand,
	}
	if influxClient != nil {
		agentOpts.Events = influxClient
	}
	hooks := agent.New(agentOpts)

	// The broker session is not closed on shutdown: the socket drops with
	// the process and the broker publishes the retained offline will.
	mqttClient := newBrokerClient(cfg.MQTT, log.With("component", "mqtt"))

	session, err := node.New(node.Deps{
		Identity:  identity,
		Config:    nodeConfig(cfg),
		Transport: newMQTTTransport(mqttClient),
		Updater:   hooks.WrapUpdater(updater),
		System:    probe,
		Restarter: restarter,
		Hooks:     hooks,
		Logger:    log.With("component", "node"),
	})
	if err != nil {
		return fmt.Errorf("creating node session: %w", err)
	}

	// Diagnostics (optional)
	var diag *diagnostics.Server
	if cfg.Diagnostics.Enabled {
		checks := map[string]diagnostics.HealthChecker{"database": db}
		if influxClient != nil {
			checks["influxdb"] = influxClient
		}
		diag, err = diagnostics.New(diagnostics.Deps{
			Config:   cfg.Diagnostics,
			Logger:   log.With("component", "diagnostics"),
			Identity: identity,
			Session:  session,
			System:   probe,
			Store:    store,
			Checks:   checks,
		})
		if err != nil {
			return fmt.Errorf("creating diagnostics server: %w", err)
		}
		if startErr := diag.Start(ctx); startErr != nil {
			return fmt.Errorf("starting diagnostics server: %w", startErr)
		}
		defer diag.Close() //nolint:errcheck // Best-effort shutdown
	}

	// Exit mode leaves the process through os.Exit, so release resources
	// here rather than relying on the deferred cleanup above.
	restarter.OnRestart(func() {
		if diag != nil {
			diag.Close() //nolint:errcheck,gosec // Best-effort shutdown before restart
		}
		if influxClient != nil {
			influxClient.Close() //nolint:errcheck,gosec // Best-effort shutdown before restart
		}
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database before restart", "error", closeErr)
		}
	})

	log.Info("Gray Logic Node started",
		"status_topic", session.StatusTopic(),
		"command_topic", session.CommandTopic(),
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"update_mode", cfg.Update.Mode,
	)

	loop(ctx, session, cfg.GetTickInterval())

	log.Info("shutting down Gray Logic Node")
	return nil
}

// newBrokerClient builds the broker client. Replaced in tests.
var newBrokerClient = func(cfg config.MQTTConfig, log *logging.Logger) mqttClient {
	client := mqtt.New(cfg)
	client.SetLogger(log)
	return client
}

// ticker is the part of node.Session the loop drives.
type ticker interface {
	Tick(now time.Time)
}

// loop calls Tick on every interval until ctx is cancelled. A Tick that
// blocks (a firmware update) delays the following ticks.
func loop(ctx context.Context, s ticker, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	s.Tick(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.Tick(now)
		}
	}
}

// nodeConfig maps the file configuration onto the node core settings.
func nodeConfig(cfg *config.Config) node.Config {
	return node.Config{
		StatusPrefix:      cfg.Topics.Status,
		CommandPrefix:     cfg.Topics.Command,
		InfoPrefix:        cfg.Topics.Info,
		ClientIDPrefix:    cfg.MQTT.Broker.ClientIDPrefix,
		Username:          cfg.MQTT.Auth.Username,
		Password:          cfg.MQTT.Auth.Password,
		UpdateServer:      cfg.Update.Server,
		UpdateSource:      node.UpdateSource(cfg.Update.Source),
		UpdateMode:        node.UpdateMode(cfg.Update.Mode),
		SettleDelay:       cfg.GetSettleDelay(),
		EraseDelay:        cfg.GetEraseDelay(),
		UpdateTimeout:     cfg.GetUpdateTimeout(),
		RestartOnUpdate:   cfg.Update.RestartOnSuccess,
		ReconnectInterval: cfg.GetReconnectInterval(),
		MaxDrain:          cfg.Node.MaxDrain,
	}
}

// incrementBootCount bumps the persisted boot counter and returns the new
// value. Failures are logged; the counter is informational.
func incrementBootCount(ctx context.Context, store settings.Store, log *logging.Logger) int {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	count := 0
	v, err := store.Get(ctx, settings.KeyBootCount)
	switch {
	case err == nil:
		if n, convErr := strconv.Atoi(v); convErr == nil {
			count = n
		}
	case !errors.Is(err, settings.ErrNotFound):
		log.Warn("reading boot count failed", "error", err)
	}
	count++

	if err := store.Set(ctx, settings.KeyBootCount, strconv.Itoa(count)); err != nil {
		log.Warn("writing boot count failed", "error", err)
	}
	return count
}

// getConfigPath returns the configuration file path: the --config flag,
// then GRAYLOGIC_NODE_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("GRAYLOGIC_NODE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
