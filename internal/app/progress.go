package app

import (
	"io"
	"path"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/oshokin/dyst/internal/api/download"
)

// progressRefreshRate limits how often a bar is redrawn.
const progressRefreshRate = 65 * time.Millisecond

// progressBars draws one byte counting bar per download on w.
// Downloads of unknown size get a spinner.
func progressBars(w io.Writer) download.ProgressFunc {
	return func(url string, total int64) io.WriteCloser {
		return progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(path.Base(url)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(progressRefreshRate),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionOnCompletion(func() {
				_, _ = io.WriteString(w, "\n")
			}),
		)
	}
}
