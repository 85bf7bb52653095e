package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"os"
	"time"

	"github.com/wesleyorama2/volley/internal/load/metrics"
)

// htmlData contains everything the HTML template renders.
type htmlData struct {
	*Summary
	Snapshot     *metrics.Snapshot
	TimelineJSON template.JS
}

// chartPoint is a timeline point in chart units.
type chartPoint struct {
	Elapsed   float64 `json:"t"`
	Rate      float64 `json:"rate"`
	ActiveVUs int     `json:"vus"`
	TargetVUs int     `json:"target"`
	P50       float64 `json:"p50"`
	P95       float64 `json:"p95"`
	P99       float64 `json:"p99"`
}

// GenerateHTML renders an HTML report and writes it to path.
func GenerateHTML(s *Summary, timeline []TimelinePoint, path string) error {
	html, err := GenerateHTMLString(s, timeline)
	if err != nil {
		return fmt.Errorf("failed to generate HTML: %w", err)
	}
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}
	return nil
}

// GenerateHTMLString renders an HTML report. The timeline may be empty,
// in which case the charts are left out.
func GenerateHTMLString(s *Summary, timeline []TimelinePoint) (string, error) {
	if s == nil || s.Result == nil {
		return "", errors.New("result cannot be nil")
	}

	tmpl, err := template.New("report").Funcs(templateFuncs()).Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	points, err := timelineJSON(timeline)
	if err != nil {
		return "", fmt.Errorf("failed to convert timeline: %w", err)
	}

	data := htmlData{
		Summary:      s,
		Snapshot:     s.Result.Snapshot,
		TimelineJSON: template.JS(points),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

func timelineJSON(timeline []TimelinePoint) (string, error) {
	if len(timeline) == 0 {
		return "[]", nil
	}
	points := make([]chartPoint, len(timeline))
	for i, p := range timeline {
		points[i] = chartPoint{
			Elapsed:   p.Elapsed.Seconds(),
			Rate:      p.IntervalRate,
			ActiveVUs: p.ActiveVUs,
			TargetVUs: p.TargetVUs,
			P50:       millis(p.P50),
			P95:       millis(p.P95),
			P99:       millis(p.P99),
		}
	}
	b, err := json.Marshal(points)
	if err != nil {
		return "[]", err
	}
	return string(b), nil
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": formatDuration,
		"formatLatency":  formatDurationShort,
		"formatNumber":   formatNumber,
	}
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Name}} - Load Test Report</title>
    <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
    <style>
        :root {
            --bg: #f8fafc; --card: #ffffff; --text: #1e293b; --muted: #64748b;
            --border: #e2e8f0; --primary: #3b82f6; --success: #22c55e;
            --warning: #f59e0b; --error: #ef4444; --purple: #8b5cf6;
        }
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: var(--bg); color: var(--text); line-height: 1.6; }
        .container { max-width: 1200px; margin: 0 auto; padding: 2rem; }
        header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 2rem; }
        .meta { color: var(--muted); font-size: 0.875rem; }
        .status { padding: 0.5rem 1.25rem; border-radius: 9999px; font-weight: 600; color: #fff; }
        .status.pass { background: var(--success); }
        .status.fail { background: var(--error); }
        .cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(180px, 1fr)); gap: 1rem; margin-bottom: 2rem; }
        .card, .section { background: var(--card); border: 1px solid var(--border); border-radius: 0.5rem; padding: 1.25rem; }
        .card .label { color: var(--muted); font-size: 0.75rem; text-transform: uppercase; }
        .card .value { font-size: 1.5rem; font-weight: 700; }
        .section { margin-bottom: 2rem; }
        .section h2 { font-size: 1.125rem; margin-bottom: 1rem; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 0.5rem; border-bottom: 1px solid var(--border); }
        .pass { color: var(--success); }
        .fail { color: var(--error); }
        .charts { display: grid; grid-template-columns: repeat(auto-fit, minmax(360px, 1fr)); gap: 1rem; }
        footer { text-align: center; color: var(--muted); font-size: 0.75rem; }
    </style>
</head>
<body>
<div class="container">
    <header>
        <div>
            <h1>{{.Name}}</h1>
            <div class="meta">
                Run {{.Result.RunID}} &middot; {{.Result.Start.Format "2006-01-02 15:04:05"}} &middot; {{formatDuration .Result.Duration}}
                {{if .Result.Cancelled}}&middot; cancelled{{end}}
            </div>
        </div>
        <div class="status {{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}&#10003; PASSED{{else}}&#10007; FAILED{{end}}</div>
    </header>

    <div class="cards">
        <div class="card"><div class="label">Iterations</div><div class="value">{{formatNumber .Snapshot.TotalIterations}}</div></div>
        <div class="card"><div class="label">Throughput</div><div class="value">{{printf "%.2f" .Snapshot.Throughput}} it/s</div></div>
        <div class="card"><div class="label">Success Rate</div><div class="value">{{.Snapshot.SuccessRate}}</div></div>
        <div class="card"><div class="label">Failures</div><div class="value">{{formatNumber .Snapshot.Failures}}</div></div>
        <div class="card"><div class="label">P95 Latency</div><div class="value">{{formatLatency .Snapshot.Latency.P95}}</div></div>
        <div class="card"><div class="label">Peak In-Flight</div><div class="value">{{.Result.PeakInFlight}}</div></div>
    </div>

    <div class="section">
        <h2>Latency Distribution ({{.Snapshot.Latency.Method}})</h2>
        {{if .Snapshot.Latency.Count}}
        <table>
            <tr><th>Min</th><th>P50</th><th>P90</th><th>P95</th><th>P99</th><th>Max</th><th>Mean</th><th>Std Dev</th></tr>
            <tr>
                <td>{{formatLatency .Snapshot.Latency.Min}}</td>
                <td>{{formatLatency .Snapshot.Latency.P50}}</td>
                <td>{{formatLatency .Snapshot.Latency.P90}}</td>
                <td>{{formatLatency .Snapshot.Latency.P95}}</td>
                <td>{{formatLatency .Snapshot.Latency.P99}}</td>
                <td>{{formatLatency .Snapshot.Latency.Max}}</td>
                <td>{{formatLatency .Snapshot.Latency.Mean}}</td>
                <td>{{formatLatency .Snapshot.Latency.StdDev}}</td>
            </tr>
        </table>
        {{else}}
        <p class="meta">No iterations recorded.</p>
        {{end}}
    </div>

    <div class="section" id="timeline">
        <h2>Timeline</h2>
        <div class="charts">
            <canvas id="rateChart"></canvas>
            <canvas id="latencyChart"></canvas>
            <canvas id="vusChart"></canvas>
        </div>
    </div>

    {{if .Snapshot.Checks}}
    <div class="section">
        <h2>Checks ({{.Snapshot.CheckPassRate}})</h2>
        <table>
            <tr><th>Check</th><th>Passes</th><th>Fails</th></tr>
            {{range .Snapshot.Checks}}
            <tr>
                <td class="{{if .Fails}}fail{{else}}pass{{end}}">{{.Name}}</td>
                <td>{{formatNumber .Passes}}</td>
                <td>{{formatNumber .Fails}}</td>
            </tr>
            {{end}}
        </table>
    </div>
    {{end}}

    {{if .Thresholds}}
    <div class="section">
        <h2>Thresholds</h2>
        <table>
            <tr><th></th><th>Metric</th><th>Expression</th><th>Actual</th></tr>
            {{range .Thresholds}}
            <tr>
                <td class="{{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}&#10003;{{else}}&#10007;{{end}}</td>
                <td>{{.Metric}}</td>
                <td>{{.Expression}}</td>
                <td>{{.Value}}{{if .Message}} <span class="fail">{{.Message}}</span>{{end}}</td>
            </tr>
            {{end}}
        </table>
    </div>
    {{end}}

    <footer>Generated by volley &middot; {{.Result.End.Format "2006-01-02 15:04:05 MST"}}</footer>
</div>
<script>
    const timeline = {{.TimelineJSON}};
    if (timeline.length === 0) {
        document.getElementById('timeline').style.display = 'none';
    } else if (typeof Chart !== 'undefined') {
        const labels = timeline.map(p => p.t.toFixed(0) + 's');
        const line = (label, data, color) => ({ label, data, borderColor: color, backgroundColor: 'transparent', tension: 0.3, pointRadius: 0, borderWidth: 2 });
        const opts = { responsive: true, animation: false, interaction: { intersect: false, mode: 'index' } };
        new Chart(document.getElementById('rateChart'), { type: 'line', options: opts,
            data: { labels, datasets: [line('Iterations/s', timeline.map(p => p.rate), '#3b82f6')] } });
        new Chart(document.getElementById('latencyChart'), { type: 'line', options: opts,
            data: { labels, datasets: [
                line('P50 (ms)', timeline.map(p => p.p50), '#22c55e'),
                line('P95 (ms)', timeline.map(p => p.p95), '#f59e0b'),
                line('P99 (ms)', timeline.map(p => p.p99), '#ef4444')] } });
        new Chart(document.getElementById('vusChart'), { type: 'line', options: opts,
            data: { labels, datasets: [
                line('Active VUs', timeline.map(p => p.vus), '#8b5cf6'),
                line('Target VUs', timeline.map(p => p.target), '#64748b')] } });
    }
</script>
</body>
</html>
`
