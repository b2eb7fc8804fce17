package config

import (
	"fmt"
	"time"

	"inboxpilot/pkg/config"
)

type Config struct {
	Server    config.ServerConfig    `yaml:"server"`
	DB        config.DBConfig        `yaml:"db"`
	Redis     config.RedisConfig     `yaml:"redis"`
	MQ        config.MQConfig        `yaml:"mq"`
	JWT       config.JWTConfig       `yaml:"jwt"`
	Google    config.GoogleConfig    `yaml:"google"`
	LLM       config.LLMConfig       `yaml:"llm"`
	Assistant config.AssistantConfig `yaml:"assistant"`
	Confirm   config.ConfirmConfig   `yaml:"confirm"`
	Otel      config.OtelConfig      `yaml:"otel"`
	Frontend  config.FrontendConfig  `yaml:"frontend"`
	Log       config.LogConfig       `yaml:"log"`
}

// Load reads config/base.yaml, the CONFIG_ENV overlay and secrets, then applies env overrides.
func Load(configDir string) (*Config, error) {
	merged, err := config.LoadConfig(config.GetConfigEnv(), configDir)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := config.Decode(merged, &cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖（生产环境使用）
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideGoogleFromEnv(&cfg.Google)
	config.OverrideLLMFromEnv(&cfg.LLM)
	config.OverrideFrontendFromEnv(&cfg.Frontend)

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8000"
	}
	if cfg.JWT.SessionTTL == 0 {
		cfg.JWT.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.JWT.CookieName == "" {
		cfg.JWT.CookieName = "inboxpilot_session"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gemini-2.5-flash"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 30 * time.Second
	}
	if cfg.Assistant.DefaultReadCount <= 0 {
		cfg.Assistant.DefaultReadCount = 5
	}
	if cfg.Assistant.MaxReadCount <= 0 {
		cfg.Assistant.MaxReadCount = 25
	}
	if cfg.Assistant.SummaryWorkers <= 0 {
		cfg.Assistant.SummaryWorkers = 3
	}
	if cfg.Confirm.TTL == 0 {
		cfg.Confirm.TTL = 10 * time.Minute
	}
	if cfg.Otel.ServiceName == "" {
		cfg.Otel.ServiceName = "inboxpilot"
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Confirm.RequireToken && !c.Confirm.Enabled {
		return fmt.Errorf("confirm.require_token needs confirm.enabled")
	}
	if c.Assistant.DefaultReadCount > c.Assistant.MaxReadCount {
		return fmt.Errorf("assistant.default_read_count exceeds max_read_count")
	}
	return nil
}
