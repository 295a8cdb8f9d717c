package main

import (
	"fmt"

	"github.com/Tyrowin/gochat-relay/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "gochat-relay",
		Short:         "Multi-room chat relay over raw sockets and WebSocket",
		Long:          "gochat-relay runs a chat server that relays messages between rooms for peers connected over a length-prefixed socket protocol or WebSocket, and ships console clients for both.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newClientCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

// addServerFlags registers the flags that override server configuration.
func addServerFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("config", "", "path to a TOML config file")
	flags.String("port", "", "HTTP listen address for the health, test page and WebSocket endpoints")
	flags.String("tcp-addr", "", "listen address for the socket front-end")
	flags.String("allowed-origins", "", "comma separated WebSocket origins, * allows any")
	flags.Int64("max-message-size", 0, "largest accepted message in bytes")
	flags.Int("rate-limit-burst", 0, "messages a peer may send in a burst")
	flags.Int("rate-limit-refill-interval", 0, "seconds to refill a full burst")
	flags.Int("send-buffer", 0, "queued outbound messages per peer")
}

var flagKeys = map[string]string{
	"port":                       server.KeyServerPort,
	"tcp-addr":                   server.KeyTCPAddr,
	"allowed-origins":            server.KeyAllowedOrigins,
	"max-message-size":           server.KeyMaxMessageSize,
	"rate-limit-burst":           server.KeyRateLimitBurst,
	"rate-limit-refill-interval": server.KeyRateLimitRefillInterval,
	"send-buffer":                server.KeySendBuffer,
}

// loadConfig layers defaults, the config file, the environment and the
// command's flags.
func loadConfig(cmd *cobra.Command) (*server.Config, error) {
	v := viper.New()

	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
	}

	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	return server.LoadConfig(v)
}
