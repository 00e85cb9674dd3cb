package toolset

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

const defaultTermWidth = 80

// prefixReserve mirrors mod.rs's "TERM_WIDTH - 14": the notify prefix
// ("tvm: missing ") plus the trailing ellipsis eats into the budget.
const prefixReserve = 14

// NotifyIfVersionsMissing writes a single warning line listing missing
// tool versions, truncated to the terminal width with a distinctive
// prefix, when missing is non-empty. Grounded in
// original_source/src/toolset/mod.rs's notify_if_versions_missing.
func NotifyIfVersionsMissing(w io.Writer, fd uintptr, missing []Version) {
	if len(missing) == 0 {
		return
	}

	names := make([]string, 0, len(missing))
	for _, v := range missing {
		names = append(names, fmt.Sprintf("%s@%s", v.Identifier().Short, v.Request.Raw()))
	}
	body := strings.Join(names, ", ")

	width := defaultTermWidth
	if w, _, err := term.GetSize(int(fd)); err == nil && w > 0 {
		width = w
	}
	budget := width - prefixReserve
	if budget < 1 {
		budget = 1
	}
	if len(body) > budget {
		body = body[:budget] + "…"
	}

	warn := color.New(color.FgYellow, color.Bold)
	fmt.Fprint(w, warn.Sprint("tvm: missing "))
	fmt.Fprintln(w, body)
}
