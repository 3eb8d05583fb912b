package utils

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// Progress is a single mpb bar on stderr. It is inert when disabled or when
// stderr is not a terminal.
type Progress struct {
	container *mpb.Progress
	bar       *mpb.Bar
	current   atomic.Pointer[string]
}

var descLength = 32

// NewProgress creates a bar labelled label that counts up to total.
func NewProgress(label string, total int, enabled bool) *Progress {
	p := &Progress{}
	empty := ""
	p.current.Store(&empty)

	if !enabled || !isTerminal() || total == 0 {
		return p
	}

	fmt.Fprintln(os.Stderr)

	p.container = mpb.New(
		mpb.WithOutput(os.Stderr),
		mpb.WithWidth(64),
		mpb.WithRefreshRate(100*time.Millisecond),
	)

	p.bar = p.container.New(int64(total),
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(label, decor.WC{C: decor.DindentRight}),
			decor.Any(func(decor.Statistics) string {
				return shorten(*p.current.Load(), descLength)
			}, decor.WC{W: descLength, C: decor.DindentRight}),
			decor.CountersNoUnit("%d/%d", decor.WC{C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.Name(" "),
			decor.Elapsed(decor.ET_STYLE_GO),
		),
	)

	return p
}

// Track has the shape of a batch progress callback: done entries out of
// total have finished and path is being worked on.
func (p *Progress) Track(done, total int, path string) {
	if p.bar == nil {
		return
	}
	p.current.Store(&path)
	p.bar.SetTotal(int64(total), false)
	p.bar.SetCurrent(int64(done))
}

// Finish completes the bar and waits for the last render.
func (p *Progress) Finish() {
	if p.container == nil {
		return
	}

	p.bar.SetTotal(-1, true)
	p.container.Wait()

	fmt.Fprintln(os.Stderr)
}

// shorten keeps the tail of s, the part of a path that tells files apart.
func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return ".." + string(r[len(r)-n+2:])
}

// isTerminal checks if stderr is a terminal (TTY)
func isTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
