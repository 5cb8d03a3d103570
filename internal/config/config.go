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

// AI providers.
const (
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
)

// Memory backends.
const (
	MemoryBackendFile   = "file"
	MemoryBackendSQLite = "sqlite"
)

var defaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Memory MemoryConfig
	Chat   ChatConfig
	Log    LogConfig
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

	memory, err := loadMemoryConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Memory: memory, Chat: chat, Log: loadLogConfig()}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址与跨域白名单。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	origins := parseListEnv("CORS_ALLOWED_ORIGINS", defaultAllowedOrigins)

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider    string
	Temperature *float64
	Gemini      GeminiConfig
	Ark         ArkConfig
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

// ArkConfig 描述火山方舟模型配置。
type ArkConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string
	TopP      *float64
	MaxTokens *int
}

// Enabled 表示是否提供了必需的密钥。
func (c GeminiConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// Enabled 表示是否提供了必需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个 ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Ark.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_MODEL and ARK_API_KEY or ARK_ACCESS_KEY + ARK_SECRET_KEY")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.Ark.TopP != nil {
		val := float32(*c.Ark.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.Ark.MaxTokens != nil {
		val := *c.Ark.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.Ark.BaseURL,
		Region:      c.Ark.Region,
		APIKey:      c.Ark.APIKey,
		AccessKey:   c.Ark.AccessKey,
		SecretKey:   c.Ark.SecretKey,
		Model:       c.Ark.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	if temperature == nil {
		val := 0.7
		temperature = &val
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	gemini := GeminiConfig{
		APIKey: firstEnv("GEMINI_API_KEY", "GOOGLE_AI_KEY", "VITE_GOOGLE_AI_KEY"),
		Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
	}

	provider := strings.ToLower(strings.TrimSpace(os.Getenv("AI_PROVIDER")))
	switch provider {
	case "":
		provider = ProviderArk
		if gemini.APIKey != "" {
			provider = ProviderGemini
		}
	case ProviderGemini, ProviderArk:
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	return AIConfig{
		Provider:    provider,
		Temperature: temperature,
		Gemini:      gemini,
		Ark: ArkConfig{
			APIKey:    strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey: strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey: strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			Model:     strings.TrimSpace(os.Getenv("ARK_MODEL")),
			BaseURL:   getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:    getEnvOrDefault("ARK_REGION", "cn-beijing"),
			TopP:      topP,
			MaxTokens: maxTokens,
		},
	}, nil
}

// MemoryConfig 描述长期记忆的存储位置。
type MemoryConfig struct {
	Backend    string
	File       string
	SQLitePath string
	QueueSize  int
}

func loadMemoryConfig() (MemoryConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("MEMORY_BACKEND", MemoryBackendFile))
	if backend != MemoryBackendFile && backend != MemoryBackendSQLite {
		return MemoryConfig{}, fmt.Errorf("invalid MEMORY_BACKEND value %q", backend)
	}

	queueSize := 32
	if override, err := parseOptionalIntEnv("MEMORY_QUEUE_SIZE"); err != nil {
		return MemoryConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return MemoryConfig{}, fmt.Errorf("invalid MEMORY_QUEUE_SIZE value %d: must be positive", *override)
		}
		queueSize = *override
	}

	return MemoryConfig{
		Backend:    backend,
		File:       getEnvOrDefault("MEMORY_FILE", "memories.json"),
		SQLitePath: getEnvOrDefault("MEMORY_SQLITE_PATH", "memories.db"),
		QueueSize:  queueSize,
	}, nil
}

// ChatConfig 控制回复分块下发的节奏。
type ChatConfig struct {
	ChunkSize  int
	ChunkDelay time.Duration
}

func loadChatConfig() (ChatConfig, error) {
	size := 10
	if override, err := parseOptionalIntEnv("CHAT_CHUNK_SIZE"); err != nil {
		return ChatConfig{}, err
	} else if override != nil {
		if *override < 1 {
			size = 1
		} else {
			size = *override
		}
	}

	delay, err := parseDurationEnv("CHAT_CHUNK_DELAY", 10*time.Millisecond)
	if err != nil {
		return ChatConfig{}, err
	}

	return ChatConfig{ChunkSize: size, ChunkDelay: delay}, nil
}

type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "json"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// firstEnv 返回第一个非空的环境变量值。
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func parseListEnv(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
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
