// Package progress implements the installer's progress-reporting
// interface (backend.ProgressReporter): an mpb-rendered bar per
// in-flight install when stderr is a terminal, collapsing to
// log/slog lines otherwise — the same TTY-detection fallback the
// teacher's ui package implements, rebuilt here against mpb's bar API
// instead of a full-screen TUI.
package progress

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/kagenomi/tvm/internal/backend"
)

// Group owns one mpb.Progress container shared by every Reporter
// spawned from it, so concurrent installs in the same wave render as
// stacked bars rather than interleaved log lines.
type Group struct {
	progress *mpb.Progress
	isTTY    bool
	logger   *slog.Logger
}

// NewGroup constructs a Group, detecting whether stderr is a terminal
// via mattn/go-isatty.
func NewGroup(logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	fd := os.Stderr.Fd()
	tty := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	g := &Group{isTTY: tty, logger: logger}
	if tty {
		g.progress = mpb.New(mpb.WithOutput(os.Stderr), mpb.WithWidth(40))
	}
	return g
}

// NewReporter attaches a new progress line for label, typically
// "<tool> <version>".
func (g *Group) NewReporter(label string) *Reporter {
	r := &Reporter{label: label, logger: g.logger}
	if !g.isTTY {
		return r
	}
	r.bar = g.progress.AddBar(0,
		mpb.PrependDecorators(decor.Name(label+" ")),
		mpb.AppendDecorators(decor.Any(func(decor.Statistics) string {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.message
		})),
	)
	return r
}

// Wait blocks until every bar in the group has completed rendering.
func (g *Group) Wait() {
	if g.progress != nil {
		g.progress.Wait()
	}
}

// Reporter implements backend.ProgressReporter for a single in-flight
// install.
type Reporter struct {
	mu      sync.Mutex
	message string
	bar     *mpb.Bar
	label   string
	logger  *slog.Logger
}

var _ backend.ProgressReporter = (*Reporter)(nil)

// SetMessage records the latest progress message. In TTY mode the bar
// decorator picks it up on its next render tick; otherwise it is
// logged immediately.
func (r *Reporter) SetMessage(msg string) {
	r.mu.Lock()
	r.message = msg
	r.mu.Unlock()
	if r.bar == nil {
		r.logger.Info(fmt.Sprintf("%s: %s", r.label, msg))
	}
}

// Done marks the reporter's bar complete; a no-op in the non-TTY
// fallback since each SetMessage call was already logged.
func (r *Reporter) Done() {
	if r.bar != nil {
		r.bar.SetTotal(1, true)
	}
}
