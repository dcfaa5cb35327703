package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Progress draws a completed/total task counter on a single terminal line.
// It is safe for concurrent use.
type Progress struct {
	w      io.Writer
	title  string
	total  int
	done   int
	failed int
	width  int
	mu     sync.Mutex
}

// NewProgress creates a progress bar for total tasks.
func NewProgress(w io.Writer, title string, total int) *Progress {
	return &Progress{
		w:     w,
		title: title,
		total: total,
		width: 30,
	}
}

// Add records one finished task.
func (p *Progress) Add(failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	if failed {
		p.failed++
	}
	p.render()
}

// Counts returns the finished and failed counts so far.
func (p *Progress) Counts() (done, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done, p.failed
}

// Finish ends the progress line.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.render()
	fmt.Fprintln(p.w)
}

func (p *Progress) render() {
	if p.total <= 0 {
		fmt.Fprintf(p.w, "\r%s %d done, %d failed", p.title, p.done, p.failed)
		return
	}

	percent := float64(p.done) / float64(p.total)
	if percent > 1 {
		percent = 1
	}
	filled := int(float64(p.width) * percent)

	fmt.Fprintf(p.w, "\r%s [%s%s] %3.0f%% (%d/%d, %d failed)",
		p.title,
		strings.Repeat("#", filled),
		strings.Repeat(".", p.width-filled),
		percent*100,
		p.done, p.total, p.failed,
	)
}
