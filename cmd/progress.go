package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/khanhnv2901/pagescope/internal/checker"
	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
)

const progressRefresh = 300 * time.Millisecond

// pageProgress renders a single status line on stderr while pages are
// analyzed. Failed fetches and pages with dangerous findings are counted
// separately so a long run shows early whether the targets are reachable.
type pageProgress struct {
	out   io.Writer
	label string

	mu        sync.Mutex
	pages     int
	analyzed  int
	failed    int
	dangerous int
	scoreSum  int
	fetchMS   float64

	redraw   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newPageProgress(out io.Writer, pages int, label string) *pageProgress {
	if pages <= 0 {
		pages = 1
	}
	return &pageProgress{
		out:    out,
		pages:  pages,
		label:  label,
		redraw: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (p *pageProgress) Start() {
	go p.loop()
}

// Record accounts one finished target. Retried targets are recorded once per
// attempt, so the page count grows when needed.
func (p *pageProgress) Record(res checker.CheckResult) {
	p.mu.Lock()
	if res.Status == "ok" && res.Report != nil {
		p.analyzed++
		p.scoreSum += res.Report.Score
		if res.Report.Counts()[analysis.SeverityDangerous] > 0 {
			p.dangerous++
		}
	} else {
		p.failed++
	}
	p.fetchMS += res.ResponseTime
	p.mu.Unlock()

	select {
	case p.redraw <- struct{}{}:
	default:
	}
}

// Stop prints the final line. Safe to call more than once.
func (p *pageProgress) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.mu.Lock()
		defer p.mu.Unlock()
		fmt.Fprintf(p.out, "\r%s\r", strings.Repeat(" ", 100))
		p.writeLocked()
		fmt.Fprintln(p.out)
	})
}

func (p *pageProgress) loop() {
	ticker := time.NewTicker(progressRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-p.redraw:
		case <-ticker.C:
		case <-p.done:
			return
		}
		p.mu.Lock()
		select {
		case <-p.done:
		default:
			p.writeLocked()
		}
		p.mu.Unlock()
	}
}

func (p *pageProgress) writeLocked() {
	finished := p.analyzed + p.failed
	if finished > p.pages {
		p.pages = finished
	}

	avgScore, avgFetch := 0, 0.0
	if p.analyzed > 0 {
		avgScore = p.scoreSum / p.analyzed
	}
	if finished > 0 {
		avgFetch = p.fetchMS / float64(finished)
	}

	fmt.Fprintf(p.out, "\r[%s] %d/%d pages (%.1f%%) analyzed:%d failed:%d dangerous:%d score:%d fetch:%.0fms",
		p.label, finished, p.pages, float64(finished)/float64(p.pages)*100,
		p.analyzed, p.failed, p.dangerous, avgScore, avgFetch)
}
