package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/JonMunkholm/csvsplit/internal/core"
)

const barWidth = 30

// progressPrinter draws a single-line progress bar on a terminal.
type progressPrinter struct {
	mu   sync.Mutex
	w    io.Writer
	name string
	last string
}

func newProgressPrinter(w io.Writer, name string) *progressPrinter {
	return &progressPrinter{w: w, name: name}
}

// Update is a core.ProgressFunc.
func (p *progressPrinter) Update(progress core.SplitProgress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pct := progress.Percent()
	filled := barWidth * pct / 100
	line := fmt.Sprintf("\r%s [%s%s] %3d%% %s",
		p.name,
		strings.Repeat("#", filled),
		strings.Repeat(" ", barWidth-filled),
		pct,
		progress.Phase,
	)
	if line == p.last {
		return
	}
	// Pad to overwrite a longer previous line.
	if pad := len(p.last) - len(line); pad > 0 {
		line += strings.Repeat(" ", pad)
	}
	p.last = line
	fmt.Fprint(p.w, line)
}

// Done ends the bar's line.
func (p *progressPrinter) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last != "" {
		fmt.Fprintln(p.w)
		p.last = ""
	}
}
