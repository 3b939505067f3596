package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/007jayesh/parsesaas-go/internal/controller"
)

// progressPrinter renders controller snapshots as a single in-place line on a
// terminal. Only observable changes are drawn, so synthetic ticks that move
// nothing stay silent.
type progressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	last    string
	printed bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) update(snap controller.Snapshot) {
	line := render(snap)
	if line == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if line == p.last {
		return
	}
	p.last = line
	p.printed = true
	fmt.Fprintf(p.w, "\r\033[K%s", line)
}

// finish ends the in-place line so later output starts on a fresh one.
func (p *progressPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed {
		fmt.Fprintln(p.w)
	}
}

func render(snap controller.Snapshot) string {
	switch snap.State {
	case controller.StateSubmitting:
		return "uploading..."
	case controller.StateActive:
		stage := snap.Stage
		if stage == "" {
			stage = "processing"
		}
		line := fmt.Sprintf("%s %3.0f%%", stage, snap.Percent)
		if snap.TotalPages > 0 {
			line += fmt.Sprintf(" (page %d/%d)", snap.CurrentPage, snap.TotalPages)
		}
		if snap.TransactionsFound > 0 {
			line += fmt.Sprintf(" %d transactions", snap.TransactionsFound)
		}
		return line
	case controller.StateCompleted:
		return "done 100%"
	case controller.StateFailed:
		return "failed"
	case controller.StateCancelled:
		return "cancelled"
	}
	return ""
}
