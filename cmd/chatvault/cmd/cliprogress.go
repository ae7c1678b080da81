package cmd

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/chatvault/chatvault/internal/importer"
)

// cliProgress implements importer.ImportProgress for terminal output.
type cliProgress struct {
	startTime time.Time
	lastPrint time.Time
	lastPhase importer.Phase
}

func (p *cliProgress) OnStart() {
	p.startTime = time.Now()
	p.lastPrint = time.Time{}
}

func (p *cliProgress) OnProgress(prog importer.Progress) {
	// A phase change always prints; within a phase, throttle to every
	// 2 seconds.
	if prog.Phase == p.lastPhase && time.Since(p.lastPrint) < 2*time.Second {
		return
	}
	if prog.Phase != p.lastPhase && p.lastPhase != "" {
		fmt.Println()
	}
	p.lastPhase = prog.Phase
	p.lastPrint = time.Now()

	elapsed := formatDuration(time.Since(p.startTime))
	if prog.Total > 0 {
		fmt.Printf("\r  [%s] %d/%d (%d%%) | Elapsed: %s    ",
			prog.Phase, prog.Current, prog.Total, prog.Percent, elapsed)
	} else {
		fmt.Printf("\r  [%s] %d | Elapsed: %s    ", prog.Phase, prog.Current, elapsed)
	}
}

func (p *cliProgress) OnComplete(*importer.Summary) {
	fmt.Println() // Clear the progress line.
}

func (p *cliProgress) OnError(err error) {
	fmt.Printf("\nWarning: %s\n", sanitizeTerminal(err.Error()))
}

// sanitizeTerminal strips control characters so untrusted strings cannot
// inject escape sequences into the terminal.
func sanitizeTerminal(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
