// Package internalconfig loads the node's runtime configuration from a
// YAML profile file named by the --env flag, with environment-variable
// overrides under the APP_ prefix.
package internalconfig

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds every field a profile file may carry.
type Config struct {
	BlockchainName        string   `mapstructure:"blockchain_name"`
	Topic                 string   `mapstructure:"libp2p_topic"`
	Authorities           []string `mapstructure:"authorities"`
	AuthorPublicKey       string   `mapstructure:"author_public_key"`
	AuthorSecretKey       string   `mapstructure:"author_secret_key"`
	DeveloperMode         bool     `mapstructure:"developer_mode"`
	ListenAddrs           []string `mapstructure:"listen_addrs"`
	BootstrapPeers        []string `mapstructure:"bootstrap_peers"`
	WebSocketAddr         string   `mapstructure:"websocket_addr"`
	MetricsAddr           string   `mapstructure:"metrics_addr"`
	MetricsEnabled        bool     `mapstructure:"metrics_enabled"`
	BlockAuthoringEnabled bool     `mapstructure:"block_authoring_enabled"`
	SyncEnabled           bool     `mapstructure:"sync_enabled"`
	LogLevel              string   `mapstructure:"log_level"`
	LogSinkURL            string   `mapstructure:"log_sink_url"`
	LogSinkKey            string   `mapstructure:"log_sink_key"`
}

// Load reads <configDir>/<env>.yaml, then applies APP_-prefixed
// environment overrides (e.g. APP_METRICS_ADDR overrides
// metrics_addr).
func Load(configDir, env string) (Config, error) {
	v := viper.New()
	v.SetConfigName(env)
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("internalconfig: read profile %q: %w", env, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("internalconfig: decode profile %q: %w", env, err)
	}
	return cfg, nil
}
