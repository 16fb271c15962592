package config

// Preset describes the models suggested for a provider.
type Preset struct {
	Model          string
	EmbeddingModel string
}

var presets = map[ProviderType]Preset{
	ProviderOllama: {Model: "deepseek-r1:1.5b", EmbeddingModel: "nomic-embed-text"},
	ProviderOpenAI: {Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small"},
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	preset := presets[ProviderOllama]
	return &Config{
		DocumentsDir:      "documents",
		DataDir:           ".docqa",
		Include:           []string{"**"},
		MaxFileSize:       64 << 20,
		ChunkSize:         512,
		ChunkOverlap:      256,
		TopK:              3,
		EmbeddingProvider: ProviderOllama,
		EmbeddingModel:    preset.EmbeddingModel,
		Provider:          ProviderOllama,
		Model:             preset.Model,
		Temperature:       0.1,
		Server: ServerConfig{
			Port:            8080,
			WatchDebounceMS: 2000,
		},
		LogLevel: "info",
	}
}

// GetPreset returns the suggested models for a provider, falling back to
// the Ollama preset.
func GetPreset(provider ProviderType) Preset {
	if p, ok := presets[provider]; ok {
		return p
	}
	return presets[ProviderOllama]
}
