package internal

import (
	"github.com/pdfchat/pdfchat/internal/config"
)

// LoadConfig reads the YAML config from configPath, or the default
// location when configPath is empty.
func LoadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}
