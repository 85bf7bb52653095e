package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/wesleyorama2/volley/internal/load"
	"github.com/wesleyorama2/volley/internal/load/metrics"
)

// ANSI escape codes for redrawing the live block.
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"

	boxHorizontal  = "━"
	progressFilled = "█"
	progressEmpty  = "░"
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	Progress  float64
	Elapsed   time.Duration
	Remaining time.Duration

	ActiveVUs int
	TargetVUs int
	InFlight  int

	Iterations int64
	Failures   int64

	CurrentStage int // 1-indexed
	TotalStages  int
}

// StatsFromLive builds LiveStats from an orchestrator's live view.
func StatsFromLive(l load.Live, progress float64, total time.Duration, totalStages int) *LiveStats {
	remaining := total - l.Elapsed
	if remaining < 0 {
		remaining = 0
	}
	return &LiveStats{
		Progress:     progress,
		Elapsed:      l.Elapsed,
		Remaining:    remaining,
		ActiveVUs:    l.ActiveVUs,
		TargetVUs:    l.TargetVUs,
		InFlight:     l.InFlight,
		Iterations:   l.Iterations,
		Failures:     l.Failures,
		CurrentStage: l.Stage + 1,
		TotalStages:  totalStages,
	}
}

// Summary is everything the final report shows.
type Summary struct {
	Name       string            `json:"name"`
	Result     *load.Result      `json:"result"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`
}

// Passed reports whether every threshold passed.
func (s *Summary) Passed() bool {
	return AllPassed(s.Thresholds)
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	TestName string
	Writer   io.Writer
	Quiet    bool
	NoColor  bool
	ForceTTY bool
}

// Console writes the header, live progress and final summary of a run.
type Console struct {
	name   string
	writer io.Writer
	isTTY  bool
	quiet  bool

	bold, dim, cyan, green, yellow, red, magenta *color.Color

	mu          sync.Mutex
	linesOutput int
}

// NewConsole creates a console reporter.
func NewConsole(config ConsoleConfig) *Console {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	isTTY := config.ForceTTY || isTerminal(config.Writer)

	c := &Console{
		name:    config.TestName,
		writer:  config.Writer,
		isTTY:   isTTY,
		quiet:   config.Quiet,
		bold:    color.New(color.Bold),
		dim:     color.New(color.Faint),
		cyan:    color.New(color.FgCyan),
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow),
		red:     color.New(color.FgRed),
		magenta: color.New(color.FgMagenta),
	}

	useColors := !config.NoColor && isTTY && os.Getenv("NO_COLOR") == ""
	for _, col := range []*color.Color{c.bold, c.dim, c.cyan, c.green, c.yellow, c.red, c.magenta} {
		if useColors {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run header.
func (c *Console) PrintHeader(plan load.Plan) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	line := c.cyan.Sprint(strings.Repeat(boxHorizontal, 56))
	c.writeln(line)
	c.writeln(c.bold.Sprintf("%s - Running", c.name))
	c.writeln(line)
	c.writeln(fmt.Sprintf("Stages: %d | Max VUs: %d | Duration: %s",
		len(plan.Stages), plan.MaxTarget(), formatDuration(plan.TotalDuration())))
	c.writeln("")
}

// Update shows live statistics. On a terminal the previous block is
// redrawn; otherwise one status line is appended.
func (c *Console) Update(stats *LiveStats) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isTTY {
		c.writeln(c.statusLine(stats))
		return
	}

	c.clearLive()
	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

func (c *Console) statusLine(stats *LiveStats) string {
	return fmt.Sprintf("[%s] Progress: %.0f%% | Stage: %d/%d | VUs: %d/%d | Iterations: %d | Failures: %d",
		formatDuration(stats.Elapsed),
		stats.Progress*100,
		stats.CurrentStage, stats.TotalStages,
		stats.ActiveVUs, stats.TargetVUs,
		stats.Iterations,
		stats.Failures)
}

func (c *Console) renderLiveStats(stats *LiveStats) []string {
	bar := renderProgressBar(stats.Progress, 40)
	timeInfo := fmt.Sprintf("%s / %s", formatDuration(stats.Elapsed), formatDuration(stats.Elapsed+stats.Remaining))

	failColor := c.green
	if stats.Iterations > 0 {
		rate := float64(stats.Failures) / float64(stats.Iterations)
		switch {
		case rate > 0.05:
			failColor = c.red
		case rate > 0.01:
			failColor = c.yellow
		}
	}

	return []string{
		fmt.Sprintf("Progress:   %s %s | %s",
			c.green.Sprint(bar),
			c.bold.Sprintf("%.0f%%", stats.Progress*100),
			c.dim.Sprint(timeInfo)),
		fmt.Sprintf("Stage:      %s", c.magenta.Sprintf("%d/%d", stats.CurrentStage, stats.TotalStages)),
		fmt.Sprintf("VUs:        %s / %d (in flight: %d)", c.cyan.Sprint(stats.ActiveVUs), stats.TargetVUs, stats.InFlight),
		fmt.Sprintf("Iterations: %s  Failures: %s",
			c.cyan.Sprint(formatNumber(stats.Iterations)),
			failColor.Sprint(formatNumber(stats.Failures))),
	}
}

func (c *Console) clearLive() {
	if c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

// PrintSummary prints the final report.
func (c *Console) PrintSummary(s *Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	passed := s.Passed()
	if c.quiet {
		if passed {
			c.writeln(c.green.Sprint("PASSED"))
		} else {
			c.writeln(c.red.Sprint("FAILED"))
		}
		return
	}

	if c.isTTY {
		c.clearLive()
	}

	status := c.green.Sprint("Completed ✓")
	switch {
	case !passed:
		status = c.red.Sprint("Failed ✗")
	case s.Result.Cancelled:
		status = c.yellow.Sprint("Cancelled")
	}

	line := c.cyan.Sprint(strings.Repeat(boxHorizontal, 56))
	c.writeln("")
	c.writeln(line)
	c.writeln(fmt.Sprintf("%s - %s", c.bold.Sprint(s.Name), status))
	c.writeln(line)
	c.writeln("")

	snap := s.Result.Snapshot
	c.writeln(fmt.Sprintf("Run ID:        %s", s.Result.RunID))
	c.writeln(fmt.Sprintf("Duration:      %s", c.cyan.Sprint(formatDuration(s.Result.Duration()))))
	c.writeln(fmt.Sprintf("Iterations:    %s (%s ok, %s failed)",
		c.cyan.Sprint(formatNumber(snap.TotalIterations)),
		formatNumber(snap.Successes),
		formatNumber(snap.Failures)))
	if snap.Timeouts > 0 || snap.Aborted > 0 {
		c.writeln(fmt.Sprintf("  Timeouts:    %d", snap.Timeouts))
		c.writeln(fmt.Sprintf("  Aborted:     %d", snap.Aborted))
	}
	c.writeln(fmt.Sprintf("Success Rate:  %s", c.rateColor(snap.SuccessRate).Sprint(snap.SuccessRate.String())))
	c.writeln(fmt.Sprintf("Throughput:    %.2f it/s", snap.Throughput()))
	c.writeln(fmt.Sprintf("Peak In-Flight: %d", s.Result.PeakInFlight))
	if s.Result.Abandoned > 0 {
		c.writeln(c.yellow.Sprintf("Abandoned:     %d VUs did not finish within the grace period", s.Result.Abandoned))
	}
	c.writeln("")

	if len(snap.Checks) > 0 {
		c.writeln(c.bold.Sprint("Checks:"))
		for _, ch := range snap.Checks {
			icon := c.green.Sprint("✓")
			if ch.Fails > 0 {
				icon = c.red.Sprint("✗")
			}
			c.writeln(fmt.Sprintf("  %s %s  %s (%d/%d)", icon, ch.Name, ch.PassRate(), ch.Passes, ch.Passes+ch.Fails))
		}
		c.writeln("")
	}

	c.writeln(c.bold.Sprintf("Latency Distribution (%s):", snap.Latency.Method))
	c.writeLatency(snap.Latency)
	c.writeln("")

	if len(s.Thresholds) > 0 {
		c.writeln(c.bold.Sprint("Thresholds:"))
		for _, t := range s.Thresholds {
			icon := c.green.Sprint("✓")
			if !t.Passed {
				icon = c.red.Sprint("✗")
			}
			value := t.Value
			if value == "" {
				value = t.Message
			}
			c.writeln(fmt.Sprintf("  %s %s %s (actual: %s)", icon, t.Metric, t.Expression, value))
		}
		c.writeln("")
	}
}

func (c *Console) writeLatency(l metrics.LatencyStats) {
	if l.Count == 0 {
		c.writeln("  no iterations recorded")
		return
	}
	for _, row := range []struct {
		label string
		value time.Duration
	}{
		{"Min", l.Min},
		{"Avg", l.Mean},
		{"P50", l.P50},
		{"P90", l.P90},
		{"P95", l.P95},
		{"P99", l.P99},
		{"Max", l.Max},
	} {
		c.writeln(fmt.Sprintf("  %-10s %s", row.label+":", formatDurationShort(row.value)))
	}
}

func (c *Console) rateColor(r metrics.Ratio) *color.Color {
	v, ok := r.Value()
	switch {
	case !ok:
		return c.dim
	case v < 0.95:
		return c.red
	case v < 0.99:
		return c.yellow
	default:
		return c.green
	}
}

func (c *Console) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

func renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %02dm %02ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

func formatDurationShort(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return "0ms"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(str, "-")
	str = strings.TrimPrefix(str, "-")
	if len(str) <= 3 {
		if neg {
			return "-" + str
		}
		return str
	}

	var result strings.Builder
	if neg {
		result.WriteByte('-')
	}
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if i > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}
