package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/MimeLyc/subtitle-batch-translator/internal/translator"
)

const (
	progressBarWidth   = 30
	progressTextLength = 40
)

// progressPrinter redraws a single progress line on a terminal. On any
// other writer it stays silent and the log carries the progress.
type progressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	live    bool
	seq     uint64
	printed bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, live: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (p *progressPrinter) Update(pr translator.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.live || pr.Sequence <= p.seq {
		return
	}
	p.seq = pr.Sequence
	fmt.Fprintf(p.w, "\r\033[K%s", progressLine(pr))
	p.printed = true
}

func (p *progressPrinter) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed {
		fmt.Fprintln(p.w)
		p.printed = false
	}
}

func progressLine(pr translator.Progress) string {
	filled, pct := 0, 0.0
	if pr.Total > 0 {
		filled = min(progressBarWidth, pr.Completed*progressBarWidth/pr.Total)
		pct = float64(pr.Completed) * 100 / float64(pr.Total)
	}
	line := fmt.Sprintf("[%s%s] %d/%d %5.1f%%",
		strings.Repeat("=", filled), strings.Repeat(" ", progressBarWidth-filled),
		pr.Completed, pr.Total, pct)
	if text := latestText(pr); text != "" {
		line += "  " + text
	}
	return line
}

// latestText returns the last translated text, shortened to one line.
func latestText(pr translator.Progress) string {
	for i := len(pr.Entries) - 1; i >= 0; i-- {
		text := strings.Join(strings.Fields(pr.Entries[i].Text), " ")
		if text == "" {
			continue
		}
		runes := []rune(text)
		if len(runes) > progressTextLength {
			text = string(runes[:progressTextLength-1]) + "…"
		}
		return text
	}
	return ""
}
