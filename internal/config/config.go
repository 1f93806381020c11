package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chatsphere/internal/logger"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// loadEnv reads .env only outside production (in containers/prod, config
// comes from the environment alone).
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		path := dir + "/.env"
		f, err := os.Open(path)
		if err == nil {
			loadEnvFrom(f)
			f.Close()
			return
		}
		parent := strings.TrimSuffix(dir, "/")
		if idx := strings.LastIndex(parent, "/"); idx <= 0 {
			return
		} else {
			dir = parent[:idx]
			if dir == "" {
				dir = "/"
			}
		}
	}
}

func loadEnvFrom(f *os.File) {
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		if len(val) >= 2 && (val[0] == '"' && val[len(val)-1] == '"' || val[0] == '\'' && val[len(val)-1] == '\'') {
			val = val[1 : len(val)-1]
		}
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// SnapshotConfig selects the session-snapshot backend. If RedisURL is set the
// snapshot lives in Redis under the session id; otherwise it is a JSON file.
type SnapshotConfig struct {
	File       string `yaml:"session_file"`
	RedisURL   string `yaml:"redis_url"`
	TTLMinutes int    `yaml:"session_ttl_minutes"`
}

// Config holds client settings.
// Priority: environment variables > YAML file > defaults.
type Config struct {
	// Server event channel
	ServerURL string `yaml:"server_url"`

	// Local view API
	ListenAddr         string        `yaml:"listen_addr"`
	CORSAllowedOrigins string        `yaml:"cors_allowed_origins"`
	ReadTimeout        time.Duration `yaml:"-"`
	WriteTimeout       time.Duration `yaml:"-"`
	IdleTimeout        time.Duration `yaml:"-"`

	// Identity, established by the auth collaborator before this layer runs.
	// The sync engine reads the username and never writes it.
	Username  string `yaml:"username"`
	LoggedOut bool   `yaml:"-"`

	// SessionID scopes the snapshot to one browser-session equivalent.
	SessionID string `yaml:"-"`

	Snapshot SnapshotConfig `yaml:"-"`

	// WebSocket
	WSSendBufferSize int `yaml:"ws_send_buffer_size"`
	WSWriteTimeout   int `yaml:"ws_write_timeout"`
	WSPongTimeout    int `yaml:"ws_pong_timeout"`
	WSMaxMessageSize int `yaml:"ws_max_message_size"`

	LogLevel string `yaml:"log_level"`
}

// yamlConfig is the intermediate structure for parsing the client YAML.
type yamlConfig struct {
	ServerURL          string `yaml:"server_url"`
	ListenAddr         string `yaml:"listen_addr"`
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`
	ReadTimeout        int    `yaml:"read_timeout"`
	WriteTimeout       int    `yaml:"write_timeout"`
	IdleTimeout        int    `yaml:"idle_timeout"`
	Username           string `yaml:"username"`
	SessionFile        string `yaml:"session_file"`
	RedisURL           string `yaml:"redis_url"`
	SessionTTLMinutes  int    `yaml:"session_ttl_minutes"`
	WSSendBufferSize   int    `yaml:"ws_send_buffer_size"`
	WSWriteTimeout     int    `yaml:"ws_write_timeout"`
	WSPongTimeout      int    `yaml:"ws_pong_timeout"`
	WSMaxMessageSize   int    `yaml:"ws_max_message_size"`
	LogLevel           string `yaml:"log_level"`
}

// Load loads the configuration. .env variables are applied first (if
// present), then YAML, then environment variables (env wins).
func Load() *Config {
	loadEnv()
	yc := yamlConfig{
		ServerURL:          "ws://localhost:8080/ws",
		ListenAddr:         ":8090",
		CORSAllowedOrigins: "*",
		ReadTimeout:        15,
		WriteTimeout:       15,
		IdleTimeout:        60,
		SessionFile:        "./.chatsphere/session.json",
		SessionTTLMinutes:  720,
		WSSendBufferSize:   256,
		WSWriteTimeout:     10,
		WSPongTimeout:      60,
		WSMaxMessageSize:   4096,
		LogLevel:           "info",
	}

	paths := []string{os.Getenv("CONFIG_PATH"), "config/client.yaml"}
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &yc); err != nil {
			logger.Errorf("config: parse %s: %v (using defaults)", path, err)
		} else {
			logger.Infof("config: loaded %s", path)
		}
		break
	}

	sessionID := envStr("SESSION_ID", "")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	cfg := &Config{
		ServerURL:          envStr("SERVER_URL", yc.ServerURL),
		ListenAddr:         envStr("LISTEN_ADDR", yc.ListenAddr),
		CORSAllowedOrigins: envStr("CORS_ALLOWED_ORIGINS", yc.CORSAllowedOrigins),
		ReadTimeout:        time.Duration(envInt("READ_TIMEOUT", yc.ReadTimeout)) * time.Second,
		WriteTimeout:       time.Duration(envInt("WRITE_TIMEOUT", yc.WriteTimeout)) * time.Second,
		IdleTimeout:        time.Duration(envInt("IDLE_TIMEOUT", yc.IdleTimeout)) * time.Second,
		Username:           envStr("CHAT_USERNAME", yc.Username),
		LoggedOut:          envBool("LOGGED_OUT", false),
		SessionID:          sessionID,
		Snapshot: SnapshotConfig{
			File:       envStr("SESSION_FILE", yc.SessionFile),
			RedisURL:   envStr("REDIS_URL", yc.RedisURL),
			TTLMinutes: envInt("SESSION_TTL_MINUTES", yc.SessionTTLMinutes),
		},
		WSSendBufferSize: envInt("WS_SEND_BUFFER_SIZE", yc.WSSendBufferSize),
		WSWriteTimeout:   envInt("WS_WRITE_TIMEOUT", yc.WSWriteTimeout),
		WSPongTimeout:    envInt("WS_PONG_TIMEOUT", yc.WSPongTimeout),
		WSMaxMessageSize: envInt("WS_MAX_MESSAGE_SIZE", yc.WSMaxMessageSize),
		LogLevel:         envStr("LOG_LEVEL", yc.LogLevel),
	}

	if cfg.Snapshot.TTLMinutes <= 0 {
		cfg.Snapshot.TTLMinutes = 720
	}
	return cfg
}

// SessionTTL returns the snapshot TTL for backends that expire (Redis).
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Snapshot.TTLMinutes) * time.Minute
}

// envStr returns the environment value or the fallback.
func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns the numeric environment value or the fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// envBool returns the boolean environment value or the fallback.
func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
