package main

import (
	"fmt"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/server"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// configFile is the on-disk layout read through --config. Keys match the
// environment variables, lower-cased.
type configFile struct {
	ServerPort              string   `toml:"server_port"`
	TCPAddr                 string   `toml:"tcp_addr"`
	AllowedOrigins          []string `toml:"allowed_origins"`
	MaxMessageSize          int64    `toml:"max_message_size"`
	RateLimitBurst          int      `toml:"rate_limit_burst"`
	RateLimitRefillInterval int      `toml:"rate_limit_refill_interval"`
	SendBuffer              int      `toml:"send_buffer"`
}

func configFileFrom(cfg server.Config) configFile {
	return configFile{
		ServerPort:              cfg.Port,
		TCPAddr:                 cfg.TCPAddr,
		AllowedOrigins:          cfg.AllowedOrigins,
		MaxMessageSize:          cfg.MaxMessageSize,
		RateLimitBurst:          cfg.RateLimit.Burst,
		RateLimitRefillInterval: int(cfg.RateLimit.RefillInterval / time.Second),
		SendBuffer:              cfg.SendBuffer,
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Long:  "config resolves defaults, the config file, environment variables and flags the same way serve does and prints the result in the format --config accepts.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			server.SetConfig(cfg)

			data, err := toml.Marshal(configFileFrom(server.CurrentConfig()))
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	addServerFlags(cmd)
	return cmd
}
