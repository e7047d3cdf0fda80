package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Redis  RedisConfig
	Chain  ChainConfig
	Relay  RelayConfig
	Server ServerConfig
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type ChainConfig struct {
	RPCURL            string `mapstructure:"rpc_url"`
	ChainID           int64  `mapstructure:"chain_id"`
	PrivateKey        string `mapstructure:"private_key"`
	GatewayAddress    string `mapstructure:"gateway_address"`
	GasServiceAddress string `mapstructure:"gas_service_address"`
	TokenAddress      string `mapstructure:"token_address"`
}

type RelayConfig struct {
	MarketActor      string `mapstructure:"market_actor"`
	AcceptedOrigin   string `mapstructure:"accepted_origin"`
	TrustedSender    string `mapstructure:"trusted_sender"`
	AdminAddress     string `mapstructure:"admin_address"`
	RetryIntervalSec int64  `mapstructure:"retry_interval_sec"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("relay.market_actor", "0xfF00000000000000000000000000000000000005")
	v.SetDefault("relay.accepted_origin", "filecoin-2")
	v.SetDefault("relay.retry_interval_sec", 60)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"redis.addr":               "REDIS_ADDR",
		"redis.password":           "REDIS_PASSWORD",
		"chain.rpc_url":            "RPC_URL",
		"chain.chain_id":           "CHAIN_ID",
		"chain.private_key":        "RELAY_SIGNING_KEY",
		"chain.gateway_address":    "AXELAR_GATEWAY",
		"chain.gas_service_address": "AXELAR_GAS_SERVICE",
		"chain.token_address":      "PAYMENT_TOKEN",
		"relay.market_actor":       "MARKET_ACTOR",
		"relay.accepted_origin":    "ACCEPTED_ORIGIN",
		"relay.trusted_sender":     "TRUSTED_SENDER",
		"relay.admin_address":      "ADMIN_ADDRESS",
		"relay.retry_interval_sec": "RETRY_INTERVAL_SEC",
		"server.port":              "PORT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	type req struct {
		val  string
		name string
	}
	for _, r := range []req{
		{c.Chain.RPCURL, "RPC_URL"},
		{c.Chain.PrivateKey, "RELAY_SIGNING_KEY"},
		{c.Chain.GatewayAddress, "AXELAR_GATEWAY"},
		{c.Chain.GasServiceAddress, "AXELAR_GAS_SERVICE"},
		{c.Relay.AdminAddress, "ADMIN_ADDRESS"},
	} {
		if r.val == "" {
			return fmt.Errorf("required config missing: %s", r.name)
		}
	}
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("required config missing: CHAIN_ID")
	}
	return nil
}
