package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/seantiz/nodekeeper/internal/backend"
)

const (
	defaultListenAddr = ":8080"
	defaultDBPath     = "nodekeeper.db"
	defaultNodeKind   = string(backend.KindEmbedded)
	defaultWarmDelay  = 5 * time.Second

	envPrefix     = "NODEKEEPER"
	envConfigFile = "NODEKEEPER_CONFIG"
	defaultEnv    = ".env"
)

// Config keys. Each maps to an environment variable with the NODEKEEPER_
// prefix and dots replaced by underscores, e.g. node.api_url is
// NODEKEEPER_NODE_API_URL.
const (
	keyListenAddr      = "listen_addr"
	keyDBPath          = "db_path"
	keyLogLevel        = "log_level"
	keyAutostart       = "autostart"
	keyWarmDelay       = "warm_delay"
	keyNodeKind        = "node.kind"
	keyNodeAPIURL      = "node.api_url"
	keyNodeRepoPath    = "node.repo_path"
	keyNodeTransport   = "node.socket_transport"
	keyNodeSocketPath  = "node.socket_path"
	keyNodeVsockPort   = "node.vsock_port"
	keyCORSAllowOrigin = "cors_allowed_origins"
)

// Config holds application configuration.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	// Node is the backend configuration used at startup when Autostart is set.
	Node      backend.Options
	Autostart bool

	// WarmDelay is how long after a node becomes available the cache warm runs.
	WarmDelay time.Duration

	CORSAllowedOrigins []string
}

// Load reads configuration with sensible defaults. Values come, in increasing
// precedence, from the YAML file named by NODEKEEPER_CONFIG, a .env file in
// the working directory, and NODEKEEPER_* environment variables.
func Load() (Config, error) {
	return load(defaultEnv)
}

func load(envFile string) (Config, error) {
	if envFile != "" {
		// godotenv never overrides variables already set in the environment.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyListenAddr, defaultListenAddr)
	v.SetDefault(keyDBPath, defaultDBPath)
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyAutostart, false)
	v.SetDefault(keyWarmDelay, defaultWarmDelay)
	v.SetDefault(keyNodeKind, defaultNodeKind)
	v.SetDefault(keyNodeAPIURL, "")
	v.SetDefault(keyNodeRepoPath, "")
	v.SetDefault(keyNodeTransport, "")
	v.SetDefault(keyNodeSocketPath, "")
	v.SetDefault(keyNodeVsockPort, 0)
	v.SetDefault(keyCORSAllowOrigin, []string{"*"})

	if path := os.Getenv(envConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	kind, err := backend.ParseKind(v.GetString(keyNodeKind))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", keyNodeKind, err)
	}

	warmDelay := v.GetDuration(keyWarmDelay)
	if warmDelay < 0 {
		return Config{}, fmt.Errorf("%s must not be negative, got %s", keyWarmDelay, warmDelay)
	}

	return Config{
		ListenAddr: v.GetString(keyListenAddr),
		DBPath:     v.GetString(keyDBPath),
		LogLevel:   parseLogLevel(v.GetString(keyLogLevel)),
		Node: backend.Options{
			Kind:            kind,
			APIURL:          v.GetString(keyNodeAPIURL),
			RepoPath:        v.GetString(keyNodeRepoPath),
			SocketTransport: v.GetString(keyNodeTransport),
			SocketPath:      v.GetString(keyNodeSocketPath),
			VsockPort:       v.GetUint32(keyNodeVsockPort),
		},
		Autostart:          v.GetBool(keyAutostart),
		WarmDelay:          warmDelay,
		CORSAllowedOrigins: v.GetStringSlice(keyCORSAllowOrigin),
	}, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
