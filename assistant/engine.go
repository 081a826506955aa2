package assistant

import (
	"fmt"

	"lifeboard/config"
	"lifeboard/interaction"
	"lifeboard/stream"
	"lifeboard/tools"
)

// FromConfig assembles a controller from loaded configuration: the
// interaction store selected by store.kind, the streaming and tool
// clients pointed at the backend, and the stream options.
func FromConfig(cfg *config.Config) (*Controller, error) {
	store, err := storeFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	streamCfg := stream.DefaultClientConfig(cfg.Backend.BaseURL)
	streamCfg.APIToken = cfg.Backend.APIToken
	streamCfg.DialTimeout = cfg.BackendTimeout()
	if cfg.Stream.Endpoint != "" {
		streamCfg.Endpoint = cfg.Stream.Endpoint
	}
	if cfg.Stream.ReadBufferSize > 0 {
		streamCfg.ReadBufferSize = cfg.Stream.ReadBufferSize
	}

	toolCfg := tools.DefaultClientConfig(cfg.Backend.BaseURL)
	toolCfg.APIToken = cfg.Backend.APIToken
	toolCfg.Timeout = cfg.BackendTimeout()

	return New(
		store,
		StreamClient{stream.NewClient(streamCfg)},
		tools.NewRegistry(tools.NewClient(toolCfg)),
		Options{
			IncludeContext: cfg.Stream.IncludeContext,
			ContextType:    cfg.Stream.ContextType,
		},
	), nil
}

func storeFromConfig(cfg *config.Config) (interaction.Store, error) {
	switch cfg.Store.Kind {
	case "sqlite":
		return interaction.NewSQLiteStore(cfg.Store.DatabasePath)
	case "remote", "":
		clientCfg := interaction.DefaultClientConfig(cfg.Backend.BaseURL)
		clientCfg.APIToken = cfg.Backend.APIToken
		clientCfg.Timeout = cfg.BackendTimeout()
		return interaction.NewClient(clientCfg), nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}
}
