package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Store     StoreConfig
	Mediation MediationConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	mediation, err := loadMediationConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		AI:        ai,
		Store:     loadStoreConfig(),
		Mediation: mediation,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
	}, nil
}

// StoreConfig 描述记录存储配置，Driver 支持 memory 与 sqlite。
type StoreConfig struct {
	Driver string
	DSN    string
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{
		Driver: getEnvOrDefault("STORE_DRIVER", "memory"),
		DSN:    getEnvOrDefault("STORE_DSN", "accord.db"),
	}
}

// MediationConfig 描述会话调解相关的可调参数。
type MediationConfig struct {
	TurnDuration        time.Duration
	InterventionDelay   time.Duration
	IssueReviewInterval time.Duration
	HistoryLimit        int
}

// 轮次时长的允许范围。
const (
	MinTurnDuration     = time.Minute
	MaxTurnDuration     = 30 * time.Minute
	DefaultTurnDuration = 3 * time.Minute
)

// ClampTurnDuration 将请求时长收敛到允许范围内，0 取默认值。
func ClampTurnDuration(d time.Duration) time.Duration {
	if d == 0 {
		return DefaultTurnDuration
	}
	if d < MinTurnDuration {
		return MinTurnDuration
	}
	if d > MaxTurnDuration {
		return MaxTurnDuration
	}
	return d
}

func loadMediationConfig() (MediationConfig, error) {
	cfg := MediationConfig{
		TurnDuration:        DefaultTurnDuration,
		InterventionDelay:   8 * time.Second,
		IssueReviewInterval: 2 * time.Minute,
		HistoryLimit:        12,
	}

	if override, err := parseOptionalIntEnv("TURN_DURATION_SECONDS"); err != nil {
		return MediationConfig{}, err
	} else if override != nil {
		cfg.TurnDuration = ClampTurnDuration(time.Duration(*override) * time.Second)
	}

	if override, err := parseOptionalIntEnv("INTERVENTION_DELAY_SECONDS"); err != nil {
		return MediationConfig{}, err
	} else if override != nil && *override > 0 {
		cfg.InterventionDelay = time.Duration(*override) * time.Second
	}

	if override, err := parseOptionalIntEnv("ISSUE_REVIEW_SECONDS"); err != nil {
		return MediationConfig{}, err
	} else if override != nil && *override > 0 {
		cfg.IssueReviewInterval = time.Duration(*override) * time.Second
	}

	if override, err := parseOptionalIntEnv("PROMPT_HISTORY_LIMIT"); err != nil {
		return MediationConfig{}, err
	} else if override != nil && *override >= 1 {
		cfg.HistoryLimit = *override
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
