package indexer

import (
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// ProgressReporter receives per-document progress during an index build
type ProgressReporter interface {
	Start(total int)
	Increment()
	Finish()
}

// BuildProgress renders a terminal progress bar over documents
type BuildProgress struct {
	enabled bool
	bar     *progressbar.ProgressBar
}

// NewBuildProgress creates a progress reporter; nil when disabled
func NewBuildProgress(enabled bool) ProgressReporter {
	if !enabled {
		return nil
	}
	return &BuildProgress{enabled: true}
}

func (p *BuildProgress) Start(total int) {
	if !p.enabled || total <= 0 {
		return
	}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("indexing"),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (p *BuildProgress) Increment() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Add(1)
}

func (p *BuildProgress) Finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
}

// DefaultProgressEnabled reports whether stderr is a terminal
func DefaultProgressEnabled() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
