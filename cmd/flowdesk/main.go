package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/flowdesk/flowdesk/internal/api"
	"github.com/flowdesk/flowdesk/internal/flow"
	"github.com/flowdesk/flowdesk/internal/messaging"
	"github.com/flowdesk/flowdesk/internal/store"
	"github.com/flowdesk/flowdesk/internal/sweeper"
	"github.com/flowdesk/flowdesk/internal/tenant"
	"github.com/flowdesk/flowdesk/internal/twiliowhatsapp"
	"github.com/flowdesk/flowdesk/internal/util"
	"github.com/flowdesk/flowdesk/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for FlowDesk state data
	DefaultStateDir = "/var/lib/flowdesk"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "flowdesk.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow session database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping FlowDesk", "channel", *flags.channel, "api_addr", *flags.apiAddr)
	if err := run(flags); err != nil {
		slog.Error("FlowDesk failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("FlowDesk exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir      string
	DatabaseURL   string
	WhatsAppDSN   string
	APIAddr       string
	TenantsFile   string
	FlowsDir      string
	Channel       string
	LockTimeout   time.Duration
	SweepSchedule string
	SweepMaxIdle  time.Duration
}

// Flags holds command line flag values
type Flags struct {
	qrOutput      *string
	numeric       *bool
	stateDir      *string
	dbDSN         *string
	waDSN         *string
	apiAddr       *string
	tenantsFile   *string
	flowsDir      *string
	channel       *string
	lockTimeout   *time.Duration
	sweepSchedule *string
	sweepMaxIdle  *time.Duration
}

// initializeLogger sets up structured logging; FLOWDESK_DEBUG=true
// lowers the level to debug.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("FLOWDESK_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:      os.Getenv("FLOWDESK_STATE_DIR"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		WhatsAppDSN:   os.Getenv("WHATSAPP_DB_DSN"),
		APIAddr:       os.Getenv("API_ADDR"),
		TenantsFile:   os.Getenv("TENANTS_FILE"),
		FlowsDir:      os.Getenv("FLOWS_DIR"),
		Channel:       os.Getenv("CHANNEL"),
		LockTimeout:   util.ParseDurationEnv("CONVERSATION_LOCK_TIMEOUT", store.DefaultLockTimeout),
		SweepSchedule: os.Getenv("SWEEP_SCHEDULE"),
		SweepMaxIdle:  util.ParseDurationEnv("SWEEP_MAX_IDLE", sweeper.DefaultMaxIdle),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No FLOWDESK_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)
	}
	if config.Channel == "" {
		config.Channel = "whatsapp"
	}

	slog.Debug("environment variables loaded",
		"FLOWDESK_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"API_ADDR", config.APIAddr,
		"TENANTS_FILE", config.TenantsFile,
		"FLOWS_DIR", config.FlowsDir,
		"CHANNEL", config.Channel)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:      flag.String("qr-output", "", "path to write login QR code"),
		numeric:       flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for FlowDesk data (overrides $FLOWDESK_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "conversation store DSN, SQLite path or postgres:// URL (overrides $DATABASE_URL)"),
		waDSN:         flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow session store DSN (overrides $WHATSAPP_DB_DSN)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		tenantsFile:   flag.String("tenants-file", config.TenantsFile, "YAML tenants file (overrides $TENANTS_FILE)"),
		flowsDir:      flag.String("flows-dir", config.FlowsDir, "directory of JSON flow definitions (overrides $FLOWS_DIR)"),
		channel:       flag.String("channel", config.Channel, "messaging channel: whatsapp, twilio or none (overrides $CHANNEL)"),
		lockTimeout:   flag.Duration("lock-timeout", config.LockTimeout, "per-conversation lock acquire timeout (overrides $CONVERSATION_LOCK_TIMEOUT)"),
		sweepSchedule: flag.String("sweep-schedule", config.SweepSchedule, "cron schedule for stale conversation cleanup (overrides $SWEEP_SCHEDULE)"),
		sweepMaxIdle:  flag.Duration("sweep-max-idle", config.SweepMaxIdle, "idle duration after which conversations expire (overrides $SWEEP_MAX_IDLE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"tenantsFile", *flags.tenantsFile,
		"flowsDir", *flags.flowsDir,
		"channel", *flags.channel,
		"lockTimeout", *flags.lockTimeout)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	for _, dsn := range []string{*flags.dbDSN, *flags.waDSN} {
		if strings.Contains(dsn, "postgres://") || strings.Contains(dsn, "host=") {
			continue
		}
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "dir", dir)
			return err
		}
	}
	return nil
}

// run wires all modules together and blocks until shutdown.
func run(flags Flags) error {
	// Flow registry: built-in flows plus optional definitions from disk.
	flows := flow.NewRegistry()
	dispatcher := flow.NewDispatcher()
	if err := flow.RegisterBuiltins(flows, dispatcher); err != nil {
		return err
	}
	if *flags.flowsDir != "" {
		if err := flow.LoadDirectory(flows, *flags.flowsDir); err != nil {
			return err
		}
	}

	// Tenants.
	tenants := tenant.NewRegistry()
	if *flags.tenantsFile != "" {
		if err := tenant.LoadFile(tenants, *flags.tenantsFile); err != nil {
			return err
		}
	} else {
		slog.Warn("No tenants file configured, starting with an empty tenant registry")
	}

	// Conversation store.
	st, err := buildStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	interp := flow.NewInterpreter(flows, st, dispatcher, flow.WithLockTimeout(*flags.lockTimeout))

	// Messaging channel.
	service, err := buildMessagingService(flags, tenants)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var router *messaging.Router
	var resolver api.CollaboratorResolver
	if service != nil {
		if err := service.Start(ctx); err != nil {
			return err
		}
		defer service.Stop()

		router = messaging.NewRouter(service, interp, tenants, messaging.DefaultOdooFactory)
		router.Start(ctx)
		resolver = router.Collaborators
	} else {
		standalone := messaging.NewRouter(nil, interp, tenants, messaging.DefaultOdooFactory)
		resolver = standalone.Collaborators
	}

	// Stale conversation cleanup.
	sw := sweeper.New(st, *flags.sweepMaxIdle)
	if err := sw.Start(*flags.sweepSchedule); err != nil {
		return err
	}
	defer sw.Stop()

	// HTTP API.
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(flows, tenants, st, interp, resolver, apiOpts...)
	if err := server.Start(); err != nil {
		return err
	}

	// Block until interrupted.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("Shutting down on signal", "signal", sig.String())

	if err := server.Stop(); err != nil {
		slog.Error("API server shutdown failed", "error", err)
	}
	cancel()
	if router != nil {
		router.Wait()
	}
	return nil
}

// buildStore selects the conversation store backend from the DSN.
func buildStore(dsn string) (store.ConversationStore, error) {
	if dsn == "" {
		slog.Warn("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildMessagingService constructs the configured messaging channel.
// The line stamped on inbound messages routes them to the owning tenant;
// with a single whatsmeow session it is the sole tenant's line.
func buildMessagingService(flags Flags, tenants *tenant.Registry) (messaging.Service, error) {
	line := ""
	if ids := tenants.IDs(); len(ids) == 1 {
		if t, err := tenants.Get(ids[0]); err == nil {
			line = t.Line
		}
	}

	switch *flags.channel {
	case "whatsapp":
		var waOpts []whatsapp.Option
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDSN))
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, err
		}
		return messaging.NewWhatsAppService(client, line), nil

	case "twilio":
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, err
		}
		return messaging.NewTwilioService(client, line), nil

	case "none":
		slog.Info("Messaging channel disabled, API-only mode")
		return nil, nil

	default:
		slog.Warn("Unknown channel, running API-only", "channel", *flags.channel)
		return nil, nil
	}
}
