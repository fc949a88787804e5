package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Progress reports stage progress as a bar on a terminal writer.
type Progress struct {
	bar    *progressbar.ProgressBar
	writer io.Writer
	desc   string
}

// NewProgress creates a progress reporter. The bar is created lazily on the
// first update, when the total is known.
func NewProgress(writer io.Writer, description string) *Progress {
	if writer == nil {
		writer = os.Stdout
	}
	return &Progress{writer: writer, desc: description}
}

// Update moves the bar to done out of total. It matches the callback
// signature of the clustering and boosting stages.
func (p *Progress) Update(done, total int) {
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.writer),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("[cyan][bold]"+p.desc+"[reset]"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				if _, err := fmt.Fprintln(p.writer); err != nil {
					slog.Warn("Failed to write newline after progress bar", "error", err)
				}
			}),
		)
	}
	if err := p.bar.Set(done); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

// Done reports whether the bar has reached its total.
func (p *Progress) Done() bool {
	return p.bar != nil && p.bar.IsFinished()
}
