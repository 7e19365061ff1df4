package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"mammo-rag/internal/models"
)

const (
	BackendChromem  = "chromem"
	BackendPostgres = "postgres"

	NetworkTFServing = "tfserving"
	NetworkONNX      = "onnx"

	DefaultAPIKeyEnv = "OPENAI_API_KEY"
)

type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Server     ServerConfig     `yaml:"server"`
	RAG        RAGConfig        `yaml:"rag"`
	EmbedLLM   LLMConfig        `yaml:"embed_llm"`
	ChatLLM    LLMConfig        `yaml:"chat_llm"`
	Database   DatabaseConfig   `yaml:"database"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Client     ClientConfig     `yaml:"client"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

type RAGConfig struct {
	CorpusDir     string `yaml:"corpus_dir"`
	IndexDir      string `yaml:"index_dir"`
	Backend       string `yaml:"backend"`
	Collection    string `yaml:"collection"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key"`
	ChunkSize     int    `yaml:"chunk_size"`
	ChunkOverlap  int    `yaml:"chunk_overlap"`
	TopK          int    `yaml:"top_k"`
	SortPaths     bool   `yaml:"sort_paths"`
}

// LLMConfig describes an OpenAI-compatible endpoint. Key wins over KeyEnv.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Key         string  `yaml:"key"`
	KeyEnv      string  `yaml:"key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	BatchSize   int     `yaml:"batch_size"`
}

type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
	Table  string `yaml:"table"`
	Debug  bool   `yaml:"debug"`
}

type ClassifierConfig struct {
	Network   string          `yaml:"network"`
	Threshold float64         `yaml:"threshold"`
	ImageSize int             `yaml:"image_size"`
	MaxPixels int             `yaml:"max_pixels"`
	TFServing TFServingConfig `yaml:"tfserving"`
	ONNX      ONNXConfig      `yaml:"onnx"`
}

type TFServingConfig struct {
	URL     string        `yaml:"url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type ONNXConfig struct {
	ModelPath   string `yaml:"model_path"`
	LibraryPath string `yaml:"library_path"`
	InputName   string `yaml:"input_name"`
	OutputName  string `yaml:"output_name"`
}

type ClientConfig struct {
	APIURL  string        `yaml:"api_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoadConfig reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file yields defaults so the binary can run
// from environment variables alone.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, models.Wrap(models.ErrConfig, "read config", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, models.Wrap(models.ErrConfig, "parse config", err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

// Validate checks values the pipeline cannot recover from.
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return models.Errorf(models.ErrValidation, "chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return models.Errorf(models.ErrValidation, "chunk_overlap must be in [0, chunk_size), got %d", c.RAG.ChunkOverlap)
	}
	if c.RAG.TopK <= 0 {
		return models.Errorf(models.ErrValidation, "top_k must be positive, got %d", c.RAG.TopK)
	}
	switch c.RAG.Backend {
	case BackendChromem:
	case BackendPostgres:
		if c.Database.DSN == "" {
			return models.Errorf(models.ErrConfig, "database.dsn is required for the postgres backend")
		}
	default:
		return models.Errorf(models.ErrConfig, "unknown rag.backend %q", c.RAG.Backend)
	}
	if k := len(c.RAG.EncryptionKey); k != 0 && k != 32 {
		return models.Errorf(models.ErrConfig, "rag.encryption_key must be 32 bytes, got %d", k)
	}
	if c.Classifier.Threshold < 0 || c.Classifier.Threshold > 1 {
		return models.Errorf(models.ErrValidation, "classifier.threshold must be in [0,1], got %v", c.Classifier.Threshold)
	}
	if c.Classifier.MaxPixels < 0 {
		return models.Errorf(models.ErrValidation, "classifier.max_pixels must not be negative, got %d", c.Classifier.MaxPixels)
	}
	return nil
}

// APIKey resolves the credential for an endpoint.
func (l *LLMConfig) APIKey() string {
	if l.Key != "" {
		return l.Key
	}
	if l.KeyEnv == "" {
		return ""
	}
	return os.Getenv(l.KeyEnv)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MAMMO_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MAMMO_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MAMMO_CORPUS_DIR"); v != "" {
		cfg.RAG.CorpusDir = v
	}
	if v := os.Getenv("MAMMO_INDEX_DIR"); v != "" {
		cfg.RAG.IndexDir = v
	}
	if v := os.Getenv("MAMMO_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("MAMMO_API_URL"); v != "" {
		cfg.Client.APIURL = v
	}
	if v := os.Getenv("MAMMO_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RAG.TopK = n
		}
	}
	if v := os.Getenv("MAMMO_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Classifier.Threshold = f
		}
	}
}

func defaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Address:         ":8000",
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  20 << 20,
		},
		RAG: RAGConfig{
			CorpusDir:    "./data/corpus",
			IndexDir:     "./data/vectorstore",
			Backend:      BackendChromem,
			Collection:   "breast_cancer",
			ChunkSize:    models.DefaultChunkSize,
			ChunkOverlap: models.DefaultChunkOverlap,
			TopK:         models.DefaultTopK,
			SortPaths:    true,
		},
		EmbedLLM: LLMConfig{
			BaseURL:   "https://api.openai.com/v1",
			KeyEnv:    DefaultAPIKeyEnv,
			Model:     "text-embedding-3-small",
			BatchSize: 64,
		},
		ChatLLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			KeyEnv:  DefaultAPIKeyEnv,
			Model:   "gpt-3.5-turbo",
		},
		Database: DatabaseConfig{
			Driver: "pgdriver",
			Table:  "documents",
		},
		Classifier: ClassifierConfig{
			Network:   NetworkTFServing,
			Threshold: models.DefaultThreshold,
			ImageSize: 224,
			MaxPixels: 50_000_000,
			TFServing: TFServingConfig{
				URL:     "http://localhost:8501",
				Model:   "resnet_cnn",
				Timeout: 30 * time.Second,
			},
			ONNX: ONNXConfig{
				InputName:  "input",
				OutputName: "output",
			},
		},
		Client: ClientConfig{
			APIURL:  "http://localhost:8000",
			Timeout: 120 * time.Second,
		},
	}
}
