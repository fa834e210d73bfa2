package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/appyard/appyard/internal/paths"
)

// Config carries every tunable of the port/process subsystem. Components
// receive the values they need; nothing reads viper after Load returns.
type Config struct {
	AppsDir      string `mapstructure:"apps_dir"`
	RegistryPath string `mapstructure:"registry_path"`
	LogsDir      string `mapstructure:"logs_dir"`
	SocketPath   string `mapstructure:"socket_path"`
	PIDFile      string `mapstructure:"pid_file"`

	// Port allocation
	PortMin       int    `mapstructure:"port_min"`
	PortMax       int    `mapstructure:"port_max"`
	ReservedPorts []int  `mapstructure:"reserved_ports"`
	ProbeHost     string `mapstructure:"probe_host"`
	ProbeAttempts int    `mapstructure:"probe_attempts"`

	// Registry locking
	LockTimeout time.Duration `mapstructure:"lock_timeout"`

	// Process lifecycle
	StartTimeout time.Duration `mapstructure:"start_timeout"`
	StopGrace    time.Duration `mapstructure:"stop_grace"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`

	// Health monitoring
	HealthMinInterval  time.Duration `mapstructure:"health_min_interval"`
	HealthMaxInterval  time.Duration `mapstructure:"health_max_interval"`
	HealthProbeTimeout time.Duration `mapstructure:"health_probe_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("apps_dir", paths.DefaultAppsDir())
	v.SetDefault("registry_path", paths.DefaultRegistryPath())
	v.SetDefault("logs_dir", paths.DefaultLogsDir())
	v.SetDefault("socket_path", paths.DefaultSocketPath())
	v.SetDefault("pid_file", paths.DefaultPIDPath())

	v.SetDefault("port_min", 3000)
	v.SetDefault("port_max", 5000)
	// The orchestrator UI's own frontend/backend ports; never handed to apps.
	v.SetDefault("reserved_ports", []int{3416, 4179})
	v.SetDefault("probe_host", "127.0.0.1")
	v.SetDefault("probe_attempts", 200)

	v.SetDefault("lock_timeout", 5*time.Second)

	v.SetDefault("start_timeout", 30*time.Second)
	v.SetDefault("stop_grace", 3*time.Second)
	v.SetDefault("settle_delay", 500*time.Millisecond)

	v.SetDefault("health_min_interval", 5*time.Second)
	v.SetDefault("health_max_interval", 60*time.Second)
	v.SetDefault("health_probe_timeout", 2*time.Second)
}

// Load reads the config file (if present) and environment overrides.
// A missing config file is not an error; defaults apply.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("APPYARD")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(paths.DefaultConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		if configFile != "" {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.PortMin < 1 || c.PortMax > 65535 || c.PortMin >= c.PortMax {
		return fmt.Errorf("invalid port range %d-%d", c.PortMin, c.PortMax)
	}
	if c.ProbeAttempts < 1 {
		return fmt.Errorf("probe_attempts must be positive, got %d", c.ProbeAttempts)
	}
	return nil
}
