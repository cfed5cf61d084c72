package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	Database  DatabaseConfig
	OpenAI    OpenAIConfig
	Chunker   ChunkerConfig
	Retrieval RetrievalConfig
	Answer    AnswerConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig は OpenAI API 設定（Embeddings + Chat）
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	ChatModel          string
}

// ChunkerConfig はチャンク分割の設定
type ChunkerConfig struct {
	MaxChars     int
	OverlapChars int
}

// RetrievalConfig は検索の設定
type RetrievalConfig struct {
	// MinScore はこれ未満しか候補がない場合に「関連コンテンツなし」とみなすしきい値
	MinScore float64
	TopK     int
}

// AnswerConfig は回答合成の予算設定
type AnswerConfig struct {
	MaxSteps       int
	TimeoutSeconds int
}

// Load は環境変数または .env ファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "tenantrag"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "tenantrag"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-large"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 3072),
			ChatModel:          getEnv("OPENAI_CHAT_MODEL", "gpt-4o"),
		},
		Chunker: ChunkerConfig{
			MaxChars:     getEnvAsInt("CHUNK_MAX_CHARS", 3000),
			OverlapChars: getEnvAsInt("CHUNK_OVERLAP_CHARS", 400),
		},
		Retrieval: RetrievalConfig{
			MinScore: getEnvAsFloat("RETRIEVAL_MIN_SCORE", 0.25),
			TopK:     getEnvAsInt("RETRIEVAL_TOP_K", 8),
		},
		Answer: AnswerConfig{
			MaxSteps:       getEnvAsInt("ANSWER_MAX_STEPS", 3),
			TimeoutSeconds: getEnvAsInt("ANSWER_TIMEOUT_SECONDS", 60),
		},
	}

	return cfg, nil
}

// Validate は必須設定の存在を確認します
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.OpenAI.EmbeddingDimension <= 0 {
		return fmt.Errorf("OPENAI_EMBEDDING_DIMENSION must be positive")
	}
	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
