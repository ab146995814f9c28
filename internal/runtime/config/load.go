package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	perrors "github.com/drblury/puppets/internal/runtime/errors"
)

// EnvPrefix is the default environment prefix, as in PUPPETS_TRANSPORT.
const EnvPrefix = "PUPPETS"

// Bind registers every configuration key on v with its zero default so that
// AutomaticEnv can populate keys absent from the config file.
func Bind(v *viper.Viper, envPrefix string) {
	if envPrefix == "" {
		envPrefix = EnvPrefix
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	defaults := map[string]any{
		"transport":                      "",
		"node_id":                        "",
		"bridge_channel":                 DefaultBridgeChannel,
		"bridge_topic":                   DefaultBridgeTopic,
		"bridge_events":                  []string{},
		"bridge_codec":                   "json",
		"kafka_brokers":                  []string{},
		"kafka_client_id":                "",
		"kafka_consumer_group":           "",
		"rabbitmq_url":                   "",
		"nats_url":                       "",
		"http_server_address":            "",
		"http_publisher_url":             "",
		"aws_region":                     "",
		"aws_account_id":                 "",
		"aws_access_key_id":              "",
		"aws_secret_access_key":          "",
		"aws_endpoint":                   "",
		"poison_queue":                   "",
		"retry_max_retries":              0,
		"retry_initial_interval":         "0s",
		"retry_max_interval":             "0s",
		"metrics_enabled":                false,
		"metrics_port":                   0,
		"inspector_enabled":              false,
		"inspector_port":                 0,
		"inspector_cors_allowed_origins": []string{},
		"default_duration":               DefaultDuration.String(),
		"default_transition":             DefaultTransition,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, perrors.ErrConfigRequired
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	cfg = cfg.WithDefaults()
	if err := perrors.NewConfigValidationError(cfg.Validate()); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads path (any format viper understands; empty skips the file), then
// environment variables under envPrefix, and returns the validated result.
func Load(path, envPrefix string) (*Config, error) {
	v := viper.New()
	Bind(v, envPrefix)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read configuration %s: %w", path, err)
			}
		}
	}
	return FromViper(v)
}
