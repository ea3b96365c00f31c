package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Policy stores the control plane can run on.
const (
	ControlStoreEtcd   = "etcd"
	ControlStoreMemory = "memory"
)

// Policy sources understood by the gateway.
const (
	PolicySourceDefault = "default"
	PolicySourceFile    = "file"
	PolicySourceEtcd    = "etcd"
)

type Config struct {
	Gateway       GatewayConfig       `yaml:"gateway"`
	Control       ControlConfig       `yaml:"control"`
	Policy        PolicyConfig        `yaml:"policy"`
	Etcd          EtcdConfig          `yaml:"etcd"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type GatewayConfig struct {
	Address         string        `yaml:"address"`
	GRPCAddress     string        `yaml:"grpc_address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxConnections  int           `yaml:"max_connections"` // 0 means unlimited
	ClientIDHeader  string        `yaml:"client_id_header"`
}

type ControlConfig struct {
	Address         string        `yaml:"address"`
	Store           string        `yaml:"store"` // "etcd" or "memory"
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type PolicyConfig struct {
	Source      string        `yaml:"source"` // "default", "file" or "etcd"
	File        string        `yaml:"file"`
	EtcdPrefix  string        `yaml:"etcd_prefix"`
	LoadTimeout time.Duration `yaml:"load_timeout"`
}

type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
}

type ObservabilityConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	TracingEnabled bool   `yaml:"tracing_enabled"`
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	LogLevel       string `yaml:"log_level"`
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() *Config {
	cfg := &Config{
		Gateway: GatewayConfig{
			Address:         getEnv("ATLAS_GATEWAY_ADDRESS", ":8080"),
			GRPCAddress:     getEnv("ATLAS_GATEWAY_GRPC_ADDRESS", ":9080"),
			ReadTimeout:     getEnvDuration("ATLAS_GATEWAY_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("ATLAS_GATEWAY_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("ATLAS_GATEWAY_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxConnections:  getEnvInt("ATLAS_GATEWAY_MAX_CONNECTIONS", 0),
			ClientIDHeader:  getEnv("ATLAS_CLIENT_ID_HEADER", "X-Client-ID"),
		},
		Control: ControlConfig{
			Address:         getEnv("ATLAS_CONTROL_ADDRESS", ":8081"),
			Store:           getEnv("ATLAS_CONTROL_STORE", ControlStoreEtcd),
			ReadTimeout:     getEnvDuration("ATLAS_CONTROL_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("ATLAS_CONTROL_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("ATLAS_CONTROL_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Policy: PolicyConfig{
			Source:      getEnv("ATLAS_POLICY_SOURCE", ""),
			File:        getEnv("ATLAS_POLICY_FILE", ""),
			EtcdPrefix:  getEnv("ATLAS_POLICY_ETCD_PREFIX", "/atlas/policies/"),
			LoadTimeout: getEnvDuration("ATLAS_POLICY_LOAD_TIMEOUT", 10*time.Second),
		},
		Etcd: EtcdConfig{
			Endpoints:   getEnvStringSlice("ATLAS_ETCD_ENDPOINTS", []string{"localhost:2379"}),
			DialTimeout: getEnvDuration("ATLAS_ETCD_DIAL_TIMEOUT", 5*time.Second),
			Username:    getEnv("ATLAS_ETCD_USERNAME", ""),
			Password:    getEnv("ATLAS_ETCD_PASSWORD", ""),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvBool("ATLAS_METRICS_ENABLED", true),
			TracingEnabled: getEnvBool("ATLAS_TRACING_ENABLED", false),
			JaegerEndpoint: getEnv("ATLAS_JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			ServiceName:    getEnv("ATLAS_SERVICE_NAME", "atlas-gateway"),
			ServiceVersion: getEnv("ATLAS_SERVICE_VERSION", "dev"),
			LogLevel:       getEnv("ATLAS_LOG_LEVEL", "info"),
		},
	}

	// A policy file implies the file source unless one was chosen explicitly.
	if cfg.Policy.Source == "" {
		cfg.Policy.Source = PolicySourceDefault
		if cfg.Policy.File != "" {
			cfg.Policy.Source = PolicySourceFile
		}
	}

	return cfg
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
