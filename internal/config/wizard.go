package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard, saves the result to
// path and returns it.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to docqa! Let's configure your documents folder.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Documents folder.
	docsPrompt := promptui.Prompt{
		Label:   "Documents folder to watch",
		Default: cfg.DocumentsDir,
	}
	docsDir, err := docsPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("documents folder: %w", err)
	}
	cfg.DocumentsDir = docsDir

	// 2. Subfolders.
	recursivePrompt := promptui.Prompt{
		Label:     "Include subfolders",
		IsConfirm: true,
	}
	if _, err := recursivePrompt.Run(); err == nil {
		cfg.Recursive = true
	} else if err != promptui.ErrAbort {
		return nil, fmt.Errorf("subfolders: %w", err)
	}

	// 3. Provider selection.
	providerPrompt := promptui.Select{
		Label: "Select model provider",
		Items: []string{
			"ollama - local models",
			"openai - OpenAI or a compatible server",
		},
	}
	idx, _, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	provider := []ProviderType{ProviderOllama, ProviderOpenAI}[idx]
	preset := GetPreset(provider)

	// 4. Chat model.
	modelPrompt := promptui.Prompt{
		Label:   "Chat model",
		Default: preset.Model,
	}
	model, err := modelPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("chat model: %w", err)
	}

	// 5. Passages per question.
	topKPrompt := promptui.Prompt{
		Label:   "Passages retrieved per question",
		Default: strconv.Itoa(cfg.TopK),
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return fmt.Errorf("enter a positive number")
			}
			return nil
		},
	}
	topK, err := topKPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("passages per question: %w", err)
	}
	cfg.TopK, _ = strconv.Atoi(topK)

	// 6. Extra exclude patterns.
	excludePrompt := promptui.Prompt{
		Label:   "Exclude patterns (comma-separated globs, blank for none)",
		Default: "",
	}
	excludeStr, err := excludePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("exclude patterns: %w", err)
	}
	cfg.Exclude = splitAndTrim(excludeStr)

	cfg.Provider = provider
	cfg.Model = model
	cfg.EmbeddingProvider = provider
	cfg.EmbeddingModel = preset.EmbeddingModel

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Check for API key.
	if envVar := APIKeyEnvVar(provider); envVar != "" && os.Getenv(envVar) == "" {
		fmt.Printf("\nNote: Set %s in your environment (or .env) before running docqa sync.\n", envVar)
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}
