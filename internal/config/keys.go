package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SYSBIND_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "SYSBIND_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SYSBIND_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "sysfs.root", typ: kString, env: "SYSBIND_SYSFS_ROOT",
		apply:   func(cfg *Config, v any) { cfg.Sysfs.Root = v.(string) },
		extract: func(cfg Config) any { return cfg.Sysfs.Root },
	},
	{
		key: "writer.command", typ: kString, env: "SYSBIND_WRITER_COMMAND",
		apply:   func(cfg *Config, v any) { cfg.Sysfs.WriterCommand = v.(string) },
		extract: func(cfg Config) any { return cfg.Sysfs.WriterCommand },
	},
	{
		key: "bindings.file", typ: kString, env: "SYSBIND_BINDINGS_FILE",
		apply:   func(cfg *Config, v any) { cfg.Bindings.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Bindings.File },
	},
	{
		key: "binding.reinit_delay", typ: kString, env: "SYSBIND_BINDING_REINIT_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Bindings.ReinitDelay = v.(string) },
		extract: func(cfg Config) any { return cfg.Bindings.ReinitDelay },
	},
	{
		key: "binding.parallel_fanout", typ: kBool, env: "SYSBIND_BINDING_PARALLEL_FANOUT",
		apply:   func(cfg *Config, v any) { cfg.Bindings.ParallelFanOut = v.(bool) },
		extract: func(cfg Config) any { return cfg.Bindings.ParallelFanOut },
	},
	{
		key: "log.level", typ: kString, env: "SYSBIND_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
