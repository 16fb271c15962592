package config

// ProviderType identifies an embedding or generation backend.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderOllama ProviderType = "ollama"
)

// Config is the top-level docqa configuration, corresponding to .docqa.yml.
type Config struct {
	DocumentsDir string   `yaml:"documents_dir" koanf:"documents_dir" validate:"required"`
	DataDir      string   `yaml:"data_dir" koanf:"data_dir" validate:"required"`
	Recursive    bool     `yaml:"recursive" koanf:"recursive"`
	Include      []string `yaml:"include" koanf:"include"`
	Exclude      []string `yaml:"exclude" koanf:"exclude"`
	MaxFileSize  int64    `yaml:"max_file_size" koanf:"max_file_size" validate:"gte=0"`

	ChunkSize    int `yaml:"chunk_size" koanf:"chunk_size" validate:"gt=0"`
	ChunkOverlap int `yaml:"chunk_overlap" koanf:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	TopK         int `yaml:"top_k" koanf:"top_k" validate:"gt=0"`

	EmbeddingProvider   ProviderType `yaml:"embedding_provider" koanf:"embedding_provider" validate:"required,oneof=openai ollama"`
	EmbeddingModel      string       `yaml:"embedding_model" koanf:"embedding_model" validate:"required"`
	EmbeddingBaseURL    string       `yaml:"embedding_base_url,omitempty" koanf:"embedding_base_url" validate:"omitempty,url"`
	EmbeddingDimensions int          `yaml:"embedding_dimensions,omitempty" koanf:"embedding_dimensions" validate:"gte=0"`

	Provider          ProviderType `yaml:"provider" koanf:"provider" validate:"required,oneof=openai ollama"`
	Model             string       `yaml:"model" koanf:"model" validate:"required"`
	BaseURL           string       `yaml:"base_url,omitempty" koanf:"base_url" validate:"omitempty,url"`
	Temperature       float64      `yaml:"temperature" koanf:"temperature" validate:"gte=0,lte=2"`
	MaxTokens         int          `yaml:"max_tokens" koanf:"max_tokens" validate:"gte=0"`
	RequestsPerMinute int          `yaml:"requests_per_minute" koanf:"requests_per_minute" validate:"gte=0"`

	Server   ServerConfig `yaml:"server" koanf:"server"`
	LogLevel string       `yaml:"log_level" koanf:"log_level" validate:"oneof=debug info warn error"`
}

// ServerConfig holds settings for the HTTP server.
type ServerConfig struct {
	Port            int  `yaml:"port" koanf:"port" validate:"gt=0,lte=65535"`
	AllowAllOrigins bool `yaml:"allow_all_origins" koanf:"allow_all_origins"`
	WatchDebounceMS int  `yaml:"watch_debounce_ms" koanf:"watch_debounce_ms" validate:"gte=0"`
}
