package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Milvus    MilvusConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Crawler   CrawlerConfig
	Ingestion IngestionConfig
	Retrieval RetrievalConfig
	Admin     AdminConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
	RateLimitRPM int
}

type SQLiteConfig struct {
	Path string
}

type MilvusConfig struct {
	Endpoint       string
	CollectionName string
	VectorDim      int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int
}

type LLMConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
}

type CrawlerConfig struct {
	MaxPages        int
	Concurrency     int
	FetchTimeoutSec int
	MinContentChars int
	MinSentences    int
	UserAgent       string
}

type IngestionConfig struct {
	ChunkSize        int
	ChunkOverlap     int
	EmbedConcurrency int
	MaxContentChars  int
}

type RetrievalConfig struct {
	SimilarityThreshold float64
	MaxMatches          int
}

type AdminConfig struct {
	Password string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/sitechat")

	viper.SetEnvPrefix("SITECHAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.maxPages must be positive, got %d", c.Crawler.MaxPages)
	}
	if c.Ingestion.ChunkSize <= 0 {
		return fmt.Errorf("ingestion.chunkSize must be positive, got %d", c.Ingestion.ChunkSize)
	}
	if c.Ingestion.ChunkOverlap < 0 || c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return fmt.Errorf("ingestion.chunkOverlap (%d) must be in [0, chunkSize)", c.Ingestion.ChunkOverlap)
	}
	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("retrieval.similarityThreshold must be in [0,1], got %f",
			c.Retrieval.SimilarityThreshold)
	}
	if c.Retrieval.MaxMatches <= 0 {
		return fmt.Errorf("retrieval.maxMatches must be positive, got %d", c.Retrieval.MaxMatches)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 60)
	viper.SetDefault("server.bodyLimit", 1048576)
	viper.SetDefault("server.rateLimitRPM", 60)

	viper.SetDefault("sqlite.path", "./data/sitechat.db")

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "tenant_knowledge")
	viper.SetDefault("milvus.vectorDim", 1536)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlSec", 3600)

	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 1024)

	viper.SetDefault("crawler.maxPages", 10)
	viper.SetDefault("crawler.concurrency", 4)
	viper.SetDefault("crawler.fetchTimeoutSec", 10)
	viper.SetDefault("crawler.minContentChars", 200)
	viper.SetDefault("crawler.minSentences", 2)
	viper.SetDefault("crawler.userAgent", "SiteChatBot/1.0")

	viper.SetDefault("ingestion.chunkSize", 800)
	viper.SetDefault("ingestion.chunkOverlap", 150)
	viper.SetDefault("ingestion.embedConcurrency", 4)
	viper.SetDefault("ingestion.maxContentChars", 20000)

	viper.SetDefault("retrieval.similarityThreshold", 0.20)
	viper.SetDefault("retrieval.maxMatches", 5)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
