// Package config loads clientgen settings from a YAML file with CLIENTGEN_
// environment overrides:
//
//	generator:
//	  input: calculator.yaml
//	  output: calculator_client.go
//	transport:
//	  kind: tcp
//	  address: 127.0.0.1:9000
//	  pool_size: 4
//	  timeout: 2s
//	log:
//	  level: info
//
// CLIENTGEN_TRANSPORT_ADDRESS overrides transport.address, and so on.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CLIENTGEN"

// Transport kinds.
const (
	KindTCP       = "tcp"
	KindWebSocket = "websocket"
	KindHTTP      = "http"
	KindEtcd      = "etcd"
)

type Config struct {
	Generator Generator `mapstructure:"generator"`
	Transport Transport `mapstructure:"transport"`
	Log       Log       `mapstructure:"log"`
}

// Generator names the description file and the generated output.
type Generator struct {
	Input   string `mapstructure:"input"`
	Output  string `mapstructure:"output"`
	Package string `mapstructure:"package"` // overrides the description's package
}

// Transport describes how a generated client reaches its server.
type Transport struct {
	Kind        string        `mapstructure:"kind"`
	Address     string        `mapstructure:"address"`   // tcp host:port, ws:// or http:// URL
	Endpoints   []string      `mapstructure:"endpoints"` // etcd
	Service     string        `mapstructure:"service"`   // etcd service name
	Balancer    string        `mapstructure:"balancer"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Retries     int           `mapstructure:"retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	RateLimit   float64       `mapstructure:"rate_limit"` // calls per second, 0 disables
	Burst       int           `mapstructure:"burst"`
}

type Log struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("generator.input", "")
	v.SetDefault("generator.output", "")
	v.SetDefault("generator.package", "")

	v.SetDefault("transport.kind", KindTCP)
	v.SetDefault("transport.address", "")
	v.SetDefault("transport.endpoints", []string{})
	v.SetDefault("transport.service", "")
	v.SetDefault("transport.balancer", "round_robin")
	v.SetDefault("transport.pool_size", 1)
	v.SetDefault("transport.dial_timeout", 5*time.Second)
	v.SetDefault("transport.timeout", 0)
	v.SetDefault("transport.retries", 0)
	v.SetDefault("transport.retry_delay", 50*time.Millisecond)
	v.SetDefault("transport.rate_limit", 0.0)
	v.SetDefault("transport.burst", 1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads path (YAML) on top of the defaults and applies environment
// overrides. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "config: read %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: decode")
	}
	return &cfg, nil
}

// Validate checks that the transport section names everything its kind
// needs.
func (t *Transport) Validate() error {
	switch t.Kind {
	case KindTCP, KindWebSocket, KindHTTP:
		if t.Address == "" {
			return errors.Errorf("config: transport.address is required for kind %q", t.Kind)
		}
	case KindEtcd:
		if len(t.Endpoints) == 0 || t.Service == "" {
			return errors.New("config: transport.endpoints and transport.service are required for kind \"etcd\"")
		}
	default:
		return errors.Errorf("config: unknown transport.kind %q", t.Kind)
	}
	if t.PoolSize < 1 {
		return errors.Errorf("config: transport.pool_size must be at least 1, got %d", t.PoolSize)
	}
	if t.Retries < 0 {
		return errors.Errorf("config: transport.retries must not be negative, got %d", t.Retries)
	}
	if t.RateLimit < 0 {
		return errors.Errorf("config: transport.rate_limit must not be negative, got %v", t.RateLimit)
	}
	return nil
}
