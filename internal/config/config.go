package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Sysfs    SysfsConfig
	Bindings BindingsConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port  int
	Token string
}

type StorageConfig struct {
	DataDir string
}

type SysfsConfig struct {
	// Root prefixes every control file path; "/" addresses the live system.
	Root string
	// WriterCommand, when set, routes reads and writes through a command
	// prefix such as "sudo -n" instead of direct file access.
	WriterCommand string
}

type BindingsConfig struct {
	File           string
	ReinitDelay    string
	ParallelFanOut bool
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Sysfs: SysfsConfig{
			Root: "/",
		},
		Bindings: BindingsConfig{
			File:        defaultBindingsFile(),
			ReinitDelay: "200ms",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/sysbind/config.json, then applies environment variable
// overrides (SYSBIND_*).
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return Config{}, fmt.Errorf("invalid server.port %d", cfg.Server.Port)
	}
	return cfg, nil
}

// APIToken returns the bearer token shared by the server and the CLI client.
func (c Config) APIToken() (string, error) {
	if c.Server.Token == "" {
		return "", fmt.Errorf("missing required config: API token. Set it via environment variable SYSBIND_API_TOKEN")
	}
	return c.Server.Token, nil
}

// ReinitDelay parses Bindings.ReinitDelay, falling back to 200ms.
func (c Config) ReinitDelay() (time.Duration, error) {
	d, err := time.ParseDuration(c.Bindings.ReinitDelay)
	if err != nil || d <= 0 {
		return 200 * time.Millisecond, fmt.Errorf("invalid binding.reinit_delay %q", c.Bindings.ReinitDelay)
	}
	return d, nil
}
