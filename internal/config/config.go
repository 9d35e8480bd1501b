package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/omnichat/webchat/internal/model"
	"github.com/omnichat/webchat/internal/storage"
	"github.com/omnichat/webchat/internal/webchat"
)

const EnvPrefix = "WEBCHAT_"

// Config represents the client and dev server configuration
type Config struct {
	API struct {
		URL string `koanf:"url"`
	} `koanf:"api"`

	WS struct {
		URL string `koanf:"url"`
	} `koanf:"ws"`

	HTTP struct {
		Timeout time.Duration `koanf:"timeout"`
	} `koanf:"http"`

	Reconnect struct {
		Initial   time.Duration `koanf:"initial"`
		Max       time.Duration `koanf:"max"`
		KeepAlive time.Duration `koanf:"keepalive"`
	} `koanf:"reconnect"`

	Guest struct {
		Name string `koanf:"name"`
	} `koanf:"guest"`

	Storage struct {
		Backend string `koanf:"backend"`
		Path    string `koanf:"path"`
		Redis   struct {
			Addr     string `koanf:"addr"`
			Password string `koanf:"password"`
			DB       int    `koanf:"db"`
			Prefix   string `koanf:"prefix"`
		} `koanf:"redis"`
		DynamoDB struct {
			Table     string `koanf:"table"`
			Region    string `koanf:"region"`
			Endpoint  string `koanf:"endpoint"`
			AccessKey string `koanf:"accesskey"`
			SecretKey string `koanf:"secretkey"`
		} `koanf:"dynamodb"`
	} `koanf:"storage"`

	Log struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"`
	} `koanf:"log"`

	Server struct {
		Addr    string   `koanf:"addr"`
		Redis   string   `koanf:"redis"`
		Origins []string `koanf:"origins"`
	} `koanf:"server"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"api.url":                webchat.DefaultBaseURL,
		"http.timeout":           "15s",
		"reconnect.initial":      "500ms",
		"reconnect.max":          "30s",
		"reconnect.keepalive":    "30s",
		"guest.name":             webchat.DefaultGuestName,
		"storage.backend":        storage.BackendFile,
		"storage.path":           defaultStoragePath(),
		"storage.redis.prefix":   "webchat:",
		"storage.dynamodb.table": model.IdentityTable,
		"log.level":              "info",
		"log.format":             "console",
		"server.addr":            ":7000",
		"server.origins":         []string{"*"},
	}
}

func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".webchat.json"
	}
	return filepath.Join(dir, "webchat", "identity.json")
}

// Load layers defaults, an optional TOML file and WEBCHAT_* environment
// variables. An empty path probes the default locations.
func Load(configPath string) (*Config, error) {
	var k = koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, path := range []string{"./webchat.toml", "$HOME/.webchat.toml"} {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// WEBCHAT_STORAGE_REDIS_ADDR -> storage.redis.addr
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// Session returns the widget configuration.
func (c *Config) Session() webchat.Config {
	return webchat.Config{
		APIBaseURL:       c.API.URL,
		WSBaseURL:        c.WS.URL,
		HTTPTimeout:      c.HTTP.Timeout,
		ReconnectInitial: c.Reconnect.Initial,
		ReconnectMax:     c.Reconnect.Max,
		KeepAlive:        c.Reconnect.KeepAlive,
		GuestName:        c.Guest.Name,
	}
}

func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend: c.Storage.Backend,
		Path:    c.Storage.Path,
		Redis: storage.RedisOptions{
			Addr:     c.Storage.Redis.Addr,
			Password: c.Storage.Redis.Password,
			DB:       c.Storage.Redis.DB,
			Prefix:   c.Storage.Redis.Prefix,
		},
		DynamoDB: storage.DynamoOptions{
			Table:           c.Storage.DynamoDB.Table,
			Region:          c.Storage.DynamoDB.Region,
			Endpoint:        c.Storage.DynamoDB.Endpoint,
			AccessKeyID:     c.Storage.DynamoDB.AccessKey,
			SecretAccessKey: c.Storage.DynamoDB.SecretKey,
		},
	}
}

// Validate checks the settings a session cannot run without.
func Validate(config *Config) error {
	if strings.TrimSpace(config.API.URL) == "" {
		return fmt.Errorf("api url is required")
	}

	switch strings.ToLower(config.Storage.Backend) {
	case "", storage.BackendMemory:
	case storage.BackendFile:
		if config.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the file backend")
		}
	case storage.BackendRedis:
		if config.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage redis addr is required for the redis backend")
		}
	case storage.BackendDynamoDB:
		if config.Storage.DynamoDB.Table == "" {
			return fmt.Errorf("storage dynamodb table is required for the dynamodb backend")
		}
		if config.Storage.DynamoDB.Region == "" {
			return fmt.Errorf("storage dynamodb region is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", config.Storage.Backend)
	}

	if config.Reconnect.Max > 0 && config.Reconnect.Max < config.Reconnect.Initial {
		return fmt.Errorf("reconnect max must not be below reconnect initial")
	}
	return nil
}

// InitConfig writes a sample configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# Web chat client configuration

[api]
url = "http://localhost:7000"

[ws]
url = ""

[http]
timeout = "15s"

[reconnect]
initial = "500ms"
max = "30s"
keepalive = "30s"

[storage]
backend = "file"
path = "./webchat-identity.json"

[storage.redis]
addr = ""
prefix = "webchat:"

[storage.dynamodb]
table = "WebChatIdentity"
region = "eu-central-1"

[log]
level = "info"
format = "console"

[server]
addr = ":7000"
redis = ""
origins = ["*"]
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}
