package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"
)

// NewProgress creates a progress bar of total steps on w.
func NewProgress(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]"+description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(w); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

// ProgressFunc adapts a bar to a (done, total) callback. The bar's maximum
// follows total so callers may create it before the total is known.
func ProgressFunc(bar *progressbar.ProgressBar) func(done, total int) {
	return func(done, total int) {
		if bar.GetMax() != total {
			bar.ChangeMax(total)
		}
		if err := bar.Set(done); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}
}
