package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/insightboard/internal/common"
)

// EnvConfigPath names the environment variable consulted when no path is given.
const EnvConfigPath = "INSIGHTBOARD_CONFIG"

// Config is the root configuration loaded from YAML.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Poll    PollConfig    `yaml:"poll"`
	Mock    MockConfig    `yaml:"mock"`
}

// ServerConfig holds the dashboard HTTP server and runtime settings.
type ServerConfig struct {
	Addr          string        `yaml:"address" validate:"required"`
	ReadTimeout   time.Duration `yaml:"readTimeout" validate:"gt=0"`
	WriteTimeout  time.Duration `yaml:"writeTimeout" validate:"gt=0"`
	IdleTimeout   time.Duration `yaml:"idleTimeout" validate:"gt=0"`
	MaxUploadSize ByteSize      `yaml:"maxUploadSize" validate:"gt=0"`
	StorageDir    string        `yaml:"storageDir" validate:"required"`
	APIKey        string        `yaml:"apiKey"`        // optional static API key header (X-API-Key)
	DatabasePath  string        `yaml:"databasePath"`  // optional, overrides default storageDir/insightboard.db
	ShutdownGrace time.Duration `yaml:"shutdownGrace"` // time to wait for the board and poller before forced stop
	LogLevel      string        `yaml:"logLevel" validate:"oneof=debug info warn warning error"`
}

// BackendConfig points the dashboard at the analysis REST backend.
type BackendConfig struct {
	BaseURL string        `yaml:"baseUrl" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
	OwnerID string        `yaml:"ownerId" validate:"required"`
}

// PollConfig tunes the poll loop and the stale placeholder policy.
type PollConfig struct {
	Interval   time.Duration `yaml:"interval" validate:"gt=0"`
	StaleAfter int           `yaml:"staleAfter" validate:"gt=0"` // missed polls before a placeholder is flagged stale
}

// MockConfig configures the development backend.
type MockConfig struct {
	Addr            string        `yaml:"address" validate:"required"`
	ProcessingDelay time.Duration `yaml:"processingDelay" validate:"gte=0"`
	FailEvery       int           `yaml:"failEvery" validate:"gte=0"` // every Nth job fails; 0 disables
	WorkerCount     int           `yaml:"workerCount" validate:"gt=0"`
}

// ByteSize represents a size in bytes that unmarshals from strings like "10Mi", "20MB", "512KiB", "1024".
type ByteSize uint64

// UnmarshalYAML implements yaml unmarshalling for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parsed, err := ParseByteSize(strings.TrimSpace(value.Value))
		if err != nil {
			return err
		}
		*b = ByteSize(parsed)
		return nil
	}
	return fmt.Errorf("invalid bytesize node kind: %v", value.Kind)
}

var reNumeric = regexp.MustCompile(`^\d+$`)

// ParseByteSize parses a string like "10Mi", "20MB", "512KiB", "1024" into bytes.
// Binary units accept Ki/Mi/Gi and KiB/MiB/GiB; decimal units KB/MB/GB; bare numbers are bytes.
func ParseByteSize(s string) (uint64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	if reNumeric.MatchString(s) {
		val, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size number: %w", err)
		}
		return val, nil
	}

	up := strings.ToUpper(s)
	units := []struct {
		suffix string
		value  uint64
	}{
		{"KI", 1 << 10},
		{"MI", 1 << 20},
		{"GI", 1 << 30},
		{"KIB", 1 << 10},
		{"MIB", 1 << 20},
		{"GIB", 1 << 30},
		{"KB", 1000},
		{"MB", 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(up, u.suffix) {
			num := strings.TrimSpace(s[:len(s)-len(u.suffix)])
			val, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size number in %q: %w", orig, err)
			}
			return uint64(val * float64(u.value)), nil
		}
	}
	return 0, fmt.Errorf("unknown size suffix in %q", orig)
}

// Load reads YAML config from path, expands environment variables, applies
// defaults and validates the result. If path is empty, INSIGHTBOARD_CONFIG is
// consulted, then "config.yaml". A missing file yields the defaults.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		if env := os.Getenv(EnvConfigPath); env != "" {
			path = env
			explicit = true
		} else {
			path = "config.yaml"
		}
	}

	var cfg Config
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 - reading sanitized config file path is expected
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// defaults only
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Server.StorageDir, 0o750); err != nil {
		return nil, fmt.Errorf("ensure storageDir: %w", err)
	}
	if cfg.Server.DatabasePath == "" {
		cfg.Server.DatabasePath = filepath.Join(cfg.Server.StorageDir, "insightboard.db")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 2 * time.Minute
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = ByteSize(100 * 1024 * 1024) // 100 MiB default, recordings are large
	}
	if cfg.Server.StorageDir == "" {
		cfg.Server.StorageDir = "data"
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = 15 * time.Second
	}
	cfg.Server.LogLevel = strings.ToLower(strings.TrimSpace(cfg.Server.LogLevel))
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}

	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = "http://localhost:7071/api"
	}
	cfg.Backend.BaseURL = strings.TrimRight(cfg.Backend.BaseURL, "/")
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = common.DefaultBackendTimeout
	}
	if cfg.Backend.OwnerID == "" {
		cfg.Backend.OwnerID = common.DefaultOwnerID
	}

	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = common.DefaultPollInterval
	}
	if cfg.Poll.StaleAfter == 0 {
		cfg.Poll.StaleAfter = common.DefaultStaleAfterPolls
	}

	if cfg.Mock.Addr == "" {
		cfg.Mock.Addr = ":7071"
	}
	if cfg.Mock.ProcessingDelay == 0 {
		cfg.Mock.ProcessingDelay = 10 * time.Second
	}
	if cfg.Mock.WorkerCount <= 0 {
		cfg.Mock.WorkerCount = 2
	}
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

func validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
