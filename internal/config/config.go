// Package config loads settings for the standby binaries. Values come, in
// increasing precedence, from built-in defaults, an optional YAML file named
// by --config, STANDBY_* environment variables (a .env file in the working
// directory is loaded first if present), and command line flags.
package config

import (
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key to form its environment variable, so
// that "liveness-interval" is read from STANDBY_LIVENESS_INTERVAL.
const EnvPrefix = "STANDBY"

// Server configures standby-server.
type Server struct {
	// Listen is the UDP address the node serves on.
	Listen          string   `mapstructure:"listen"`
	// Role forces the startup role. Empty means take one from the
	// coordination directory.
	Role            string   `mapstructure:"role"`
	CoordinationDir string   `mapstructure:"coordination-dir"`
	Active          string   `mapstructure:"active"`
	Peers           []string `mapstructure:"peers"`

	LivenessInterval time.Duration `mapstructure:"liveness-interval"`
	LivenessTimeout  time.Duration `mapstructure:"liveness-timeout"`

	// StatusAddr is the HTTP address of the status endpoint. Empty disables it.
	StatusAddr string `mapstructure:"status-addr"`
	LogLevel   string `mapstructure:"log-level"`
}

// Client configures standby-client.
type Client struct {
	Primary     string        `mapstructure:"primary"`
	Alternate   string        `mapstructure:"alternate"`
	Actor       string        `mapstructure:"actor"`
	// BothSides alternates the actor after every accepted move, so one
	// client plays the whole game.
	BothSides   bool          `mapstructure:"both-sides"`
	BaseTimeout time.Duration `mapstructure:"base-timeout"`
	SwitchAfter int           `mapstructure:"switch-after"`
	LogLevel    string        `mapstructure:"log-level"`
}

func serverFlags(f *pflag.FlagSet) {
	f.String("listen", ":9000", "UDP address to serve on")
	f.String("role", "", "force the startup role (active or standby) instead of using the coordination dir")
	f.String("coordination-dir", ".", "directory holding the shared role counter")
	f.String("active", "127.0.0.1:9000", "active node endpoint, used when starting as a standby")
	f.StringSlice("peers", nil, "other standbys to notify on promotion")
	f.Duration("liveness-interval", time.Second, "how often a standby probes the active node")
	f.Duration("liveness-timeout", 500*time.Millisecond, "how long a probe may go unanswered")
	f.String("status-addr", "", "HTTP address for /healthz and /status; empty disables it")
	f.String("log-level", "info", "one of debug, info, warn, error, crit")
}

func clientFlags(f *pflag.FlagSet) {
	f.String("primary", "127.0.0.1:9000", "server endpoint tried first")
	f.String("alternate", "127.0.0.1:9001", "server endpoint switched to after repeated timeouts")
	f.String("actor", "X", "the side that moves first")
	f.Bool("both-sides", true, "alternate between X and O after every accepted move")
	f.Duration("base-timeout", 100*time.Millisecond, "initial acknowledgement wait")
	f.Int("switch-after", 5, "timeouts before switching endpoints")
	f.String("log-level", "warn", "one of debug, info, warn, error, crit")
}

// LoadServer parses args (without the program name) into a Server.
func LoadServer(args []string) (*Server, []string, error) {
	var c Server
	rest, err := load("standby-server", args, serverFlags, &c)
	if err != nil {
		return nil, nil, err
	}
	if c.Role != "" && c.Role != "active" && c.Role != "standby" {
		return nil, nil, errors.Errorf("invalid role %q", c.Role)
	}
	return &c, rest, nil
}

// LoadClient parses args (without the program name) into a Client.
func LoadClient(args []string) (*Client, []string, error) {
	var c Client
	rest, err := load("standby-client", args, clientFlags, &c)
	if err != nil {
		return nil, nil, err
	}
	if len(c.Actor) != 1 {
		return nil, nil, errors.Errorf("actor must be a single character, got %q", c.Actor)
	}
	return &c, rest, nil
}

func load(name string, args []string, define func(*pflag.FlagSet), out interface{}) ([]string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "can't load .env")
	}

	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	define(flags)
	configFile := flags.String("config", "", "YAML config file")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, errors.Wrap(err, "can't bind flags")
	}
	if *configFile != "" {
		v.SetConfigFile(*configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "can't read config %s", *configFile)
		}
	}
	if err := v.Unmarshal(out); err != nil {
		return nil, errors.Wrap(err, "can't decode config")
	}
	return flags.Args(), nil
}

// Logger builds the root logger for a binary at the named level, writing
// logfmt to stderr.
func Logger(level string, ctx ...interface{}) (log15.Logger, error) {
	lvl, err := log15.LvlFromString(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}
	l := log15.New(ctx...)
	l.SetHandler(log15.LvlFilterHandler(lvl, log15.StreamHandler(os.Stderr, log15.LogfmtFormat())))
	return l, nil
}
