package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Provider string `json:"provider" yaml:"provider"`
	Pexels   struct {
		Key      string `json:"key" yaml:"key"`
		BaseUrl  string `json:"baseUrl" yaml:"baseUrl"`
		PageSize int    `json:"pageSize" yaml:"pageSize"`
	} `json:"pexels.com" yaml:"pexels.com"`
	Pixabay struct {
		Key      string `json:"key" yaml:"key"`
		BaseUrl  string `json:"baseUrl" yaml:"baseUrl"`
		PageSize int    `json:"pageSize" yaml:"pageSize"`
	} `json:"pixabay.com" yaml:"pixabay.com"`
	Database string `json:"database" yaml:"database"`
	Listen   string `json:"listen" yaml:"listen"`
	Cache    struct {
		TTLSeconds    int    `json:"ttl" yaml:"ttl"`
		PurgeSchedule string `json:"purgeSchedule" yaml:"purgeSchedule"`
	} `json:"cache" yaml:"cache"`
	Upstream struct {
		TimeoutSeconds int     `json:"timeout" yaml:"timeout"`
		RatePerSecond  float64 `json:"ratePerSecond" yaml:"ratePerSecond"`
		Burst          int     `json:"burst" yaml:"burst"`
	} `json:"upstream" yaml:"upstream"`
	Sessions struct {
		Max        int `json:"max" yaml:"max"`
		TTLMinutes int `json:"ttl" yaml:"ttl"`
	} `json:"sessions" yaml:"sessions"`
	Auth struct {
		Required bool `json:"required" yaml:"required"`
	} `json:"auth" yaml:"auth"`
	Trending []string `json:"trending" yaml:"trending"`
	Debug    struct {
		PrettyJson bool `json:"prettyJson" yaml:"prettyJson"`
	} `json:"debug" yaml:"debug"`
}

const defaultConfigFile = "conf/config.json"

var ErrUnknownProvider = errors.New("unknown photo provider")

// LoadConfig reads the config file at path, which may be missing, then applies
// .env and environment overrides and fills in defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && path == defaultConfigFile:
	case err != nil:
		return nil, err
	default:
		if err := decodeConfig(path, data, cfg); err != nil {
			return nil, err
		}
	}
	// .env is optional
	_ = godotenv.Load()
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, cfg.validate()
}

func decodeConfig(path string, data []byte, cfg *Config) error {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("unable to decode configuration file %s: %w", path, err)
		}
		return nil
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	err := decoder.Decode(cfg)
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		pos := findPos(bufio.NewReader(bytes.NewReader(data)), int(syntaxErr.Offset))
		return fmt.Errorf("unable to decode configuration file (Line: %d, Pos: %d): %w", pos.line, pos.pos, err)
	}
	if err != nil {
		return fmt.Errorf("unable to decode configuration file %s: %w", path, err)
	}
	return nil
}

func (cfg *Config) applyEnv() {
	if v := os.Getenv("PEXELS_API_KEY"); v != "" {
		cfg.Pexels.Key = v
	}
	if v := os.Getenv("PIXABAY_API_KEY"); v != "" {
		cfg.Pixabay.Key = v
	}
	if v := os.Getenv("PHOTOS_DATABASE"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("PHOTOS_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("PHOTOS_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v, err := strconv.ParseBool(os.Getenv("PHOTOS_AUTH_REQUIRED")); err == nil {
		cfg.Auth.Required = v
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Provider == "" {
		cfg.Provider = "pexels"
	}
	if cfg.Pexels.PageSize <= 0 || cfg.Pexels.PageSize > 80 {
		cfg.Pexels.PageSize = 80
	}
	if cfg.Pixabay.PageSize < 3 || cfg.Pixabay.PageSize > 200 {
		cfg.Pixabay.PageSize = 100
	}
	if cfg.Database == "" {
		cfg.Database = dbFile
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8081"
	}
	if cfg.Cache.TTLSeconds <= 0 {
		cfg.Cache.TTLSeconds = 86400
	}
	if cfg.Cache.PurgeSchedule == "" {
		cfg.Cache.PurgeSchedule = "@hourly"
	}
	if cfg.Upstream.TimeoutSeconds <= 0 {
		cfg.Upstream.TimeoutSeconds = 15
	}
	if cfg.Upstream.Burst <= 0 {
		cfg.Upstream.Burst = 5
	}
	if cfg.Sessions.Max <= 0 {
		cfg.Sessions.Max = 1024
	}
	if cfg.Sessions.TTLMinutes <= 0 {
		cfg.Sessions.TTLMinutes = 60
	}
}

func (cfg *Config) validate() error {
	switch cfg.Provider {
	case "pexels", "pixabay":
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
}

func (cfg *Config) upstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		Timeout:       time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		RatePerSecond: cfg.Upstream.RatePerSecond,
		Burst:         cfg.Upstream.Burst,
	}
}

func (cfg *Config) cacheTTL() time.Duration {
	return time.Duration(cfg.Cache.TTLSeconds) * time.Second
}

func (cfg *Config) sessionTTL() time.Duration {
	return time.Duration(cfg.Sessions.TTLMinutes) * time.Minute
}

// NewSearcher builds the configured provider client.
func NewSearcher(cfg *Config, cache *ReqCache) (PhotoSearcher, error) {
	switch cfg.Provider {
	case "pexels":
		return NewPexelsApi(cfg, cache), nil
	case "pixabay":
		return NewPixabayApi(cfg, cache), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
}

type FilePos struct {
	line int
	pos  int
}

func findPos(file *bufio.Reader, offset int) FilePos {
	p := FilePos{line: 1, pos: offset}
	var lineLen int
	for line, err := file.ReadBytes('\n'); len(line) > 0 && err == nil; line, err = file.ReadBytes('\n') {
		if p.pos < len(line) {
			return p
		}
		lineLen += len(line)
		if line[len(line)-1] == '\n' {
			p.line += 1
			p.pos -= lineLen
			lineLen = 0
		}
	}
	return p
}
