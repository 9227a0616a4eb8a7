package sparsearray

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// Progress tracks incremental progress through a write or read
// operation, adapted from pmtiles/progress.go. Passing NoopProgress{}
// suppresses reporting entirely (used in tests and by default).
type Progress interface {
	io.Writer
	Add(num int)
	Close() error
}

// NewCellProgress returns a schollz/progressbar-backed Progress for a
// cell count total, or a no-op Progress if quiet is true.
func NewCellProgress(total int64, description string, quiet bool) Progress {
	if quiet {
		return NoopProgress{}
	}
	bar := progressbar.Default(total, description)
	return &progressBarWrapper{bar: bar}
}

// NewByteProgress returns a schollz/progressbar-backed Progress for a
// byte-count total, or a no-op Progress if quiet is true.
func NewByteProgress(total int64, description string, quiet bool) Progress {
	if quiet {
		return NoopProgress{}
	}
	bar := progressbar.DefaultBytes(total, description)
	return &progressBarWrapper{bar: bar}
}

type progressBarWrapper struct {
	bar *progressbar.ProgressBar
}

func (p *progressBarWrapper) Write(data []byte) (int, error) {
	return p.bar.Write(data)
}

func (p *progressBarWrapper) Add(num int) {
	p.bar.Add(num)
}

func (p *progressBarWrapper) Close() error {
	return p.bar.Close()
}

// NoopProgress discards all progress updates.
type NoopProgress struct{}

func (NoopProgress) Write(data []byte) (int, error) { return len(data), nil }
func (NoopProgress) Add(int)                        {}
func (NoopProgress) Close() error                   { return nil }
