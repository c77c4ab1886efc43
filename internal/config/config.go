package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port        string   `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
		PublicURL   string   `yaml:"public_url"` // base used in media URLs returned by uploads
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
		StateTTL string `yaml:"state_ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Storage struct {
		Type          string `yaml:"type"` // memory, local or minio
		LocalPath     string `yaml:"local_path"`
		SeedTemplates bool   `yaml:"seed_templates"`
		Minio         struct {
			Endpoint  string `yaml:"endpoint"`
			AccessKey string `yaml:"access_key"`
			SecretKey string `yaml:"secret_key"`
			Bucket    string `yaml:"bucket"`
			UseSSL    bool   `yaml:"use_ssl"`
		} `yaml:"minio"`
	} `yaml:"storage"`
	Prefetch struct {
		Concurrency int    `yaml:"concurrency"`
		Timeout     string `yaml:"timeout"`
		CacheTTL    string `yaml:"cache_ttl"`
	} `yaml:"prefetch"`
	Package struct {
		Concurrency int `yaml:"concurrency"`
	} `yaml:"package"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
