package internal

import (
	"os"
	"path/filepath"

	"github.com/pdfchat/pdfchat/internal/config"
)

// ResolvePaths fills in the default index and conversation locations
// under ~/.pdfchat when the config leaves them empty.
func ResolvePaths(cfg *config.Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	if cfg.Index.Dir == "" {
		cfg.Index.Dir = filepath.Join(homeDir, ".pdfchat", "index")
	}
	if cfg.Conversation.Path == "" {
		cfg.Conversation.Path = filepath.Join(homeDir, ".pdfchat", "conversations.db")
	}
	return nil
}
