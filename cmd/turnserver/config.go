package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every flag this command accepts, per SPEC_FULL's
// configuration surface: store backend selection, Redis address,
// timing knobs, and logging.
type Config struct {
	listenAddr string
	storeKind  string // memory|local|redis

	redisAddr     string
	redisPassword string
	redisDB       int

	localStoreDir string

	snapshotInterval time.Duration
	reapInterval     time.Duration
	heartbeatInterval time.Duration
	drainTimeout     time.Duration

	logLevel  string
	logFormat string

	version bool
}

func (c *Config) validate() error {
	switch c.storeKind {
	case "memory", "local", "redis":
	default:
		return fmt.Errorf("invalid --store (must be memory, local, or redis): %s", c.storeKind)
	}
	if c.storeKind == "redis" && c.redisAddr == "" {
		return fmt.Errorf("--redis-addr is required when --store=redis")
	}
	if c.storeKind == "local" && c.localStoreDir == "" {
		return fmt.Errorf("--local-store-dir is required when --store=local")
	}
	return nil
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("TURNSERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "turnserver",
		Short:         "Server-authoritative turn timer and state engine for tabletop play.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return Serve(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&cfg.listenAddr, "listen-addr", ":8080", "address to listen on (env: TURNSERVER_LISTEN_ADDR)")
	fs.StringVar(&cfg.storeKind, "store", "memory", "persistence backend: memory, local, or redis (env: TURNSERVER_STORE)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "", "redis address for --store=redis (env: TURNSERVER_REDIS_ADDR)")
	fs.StringVar(&cfg.redisPassword, "redis-password", "", "redis password for --store=redis (env: TURNSERVER_REDIS_PASSWORD)")
	fs.IntVar(&cfg.redisDB, "redis-db", 0, "redis logical db index (env: TURNSERVER_REDIS_DB)")
	fs.StringVar(&cfg.localStoreDir, "local-store-dir", "./data", "directory for --store=local (env: TURNSERVER_LOCAL_STORE_DIR)")
	fs.DurationVar(&cfg.snapshotInterval, "snapshot-interval", 5*time.Second, "periodic full-snapshot flush interval (env: TURNSERVER_SNAPSHOT_INTERVAL)")
	fs.DurationVar(&cfg.reapInterval, "reap-interval", 5*time.Minute, "idle/empty session reap sweep interval (env: TURNSERVER_REAP_INTERVAL)")
	fs.DurationVar(&cfg.heartbeatInterval, "heartbeat-interval", 30*time.Second, "shared-store instance heartbeat interval (env: TURNSERVER_HEARTBEAT_INTERVAL)")
	fs.DurationVar(&cfg.drainTimeout, "drain-timeout", 30*time.Second, "max time to wait for connections to drain before forcing shutdown (env: TURNSERVER_DRAIN_TIMEOUT)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug, info, warn, error (env: TURNSERVER_LOG_LEVEL)")
	fs.StringVar(&cfg.logFormat, "log-format", "json", "log format: json or console (env: TURNSERVER_LOG_FORMAT)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: TURNSERVER_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("turnserver v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
