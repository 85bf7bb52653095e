// Package observe turns orchestrator lifecycle events into logs and metrics.
package observe

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wesleyorama2/volley/internal/load"
)

// LogObserver writes one structured log line per lifecycle event.
type LogObserver struct {
	logger *zap.Logger
	only   map[load.EventType]bool
}

var _ load.Observer = (*LogObserver)(nil)

// NewLogObserver creates a LogObserver. A nil logger discards everything.
// When types are given only those events are logged.
func NewLogObserver(logger *zap.Logger, types ...load.EventType) *LogObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &LogObserver{logger: logger}
	if len(types) > 0 {
		o.only = make(map[load.EventType]bool, len(types))
		for _, t := range types {
			o.only[t] = true
		}
	}
	return o
}

// OnEvent logs e.
func (o *LogObserver) OnEvent(e load.Event) {
	if o.only != nil && !o.only[e.Type] {
		return
	}
	fields := []zap.Field{
		zap.String("run_id", e.RunID),
		zap.String("event", string(e.Type)),
		zap.Duration("elapsed", e.Elapsed),
		zap.Int("stage", e.Stage),
		zap.Int("vus", e.ActiveVUs),
		zap.Int("target_vus", e.TargetVUs),
	}
	if e.StageName != "" {
		fields = append(fields, zap.String("stage_name", e.StageName))
	}
	if e.Snapshot != nil {
		fields = append(fields,
			zap.Int64("iterations", e.Snapshot.TotalIterations),
			zap.Int64("failures", e.Snapshot.Failures),
			zap.Stringer("success_rate", e.Snapshot.SuccessRate),
			zap.Duration("p95", e.Snapshot.Latency.P95),
		)
	}
	if e.Abandoned > 0 {
		fields = append(fields, zap.Int("abandoned", e.Abandoned))
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}

	o.logger.Log(levelFor(e), message(e.Type), fields...)
}

func levelFor(e load.Event) zapcore.Level {
	switch e.Type {
	case load.EventDrainTimeout:
		return zapcore.WarnLevel
	case load.EventVUsChanged:
		return zapcore.DebugLevel
	case load.EventCompleted:
		if e.Err != nil {
			return zapcore.ErrorLevel
		}
	}
	return zapcore.InfoLevel
}

func message(t load.EventType) string {
	switch t {
	case load.EventRunStarted:
		return "Run started"
	case load.EventStageStarted:
		return "Stage started"
	case load.EventVUsChanged:
		return "VU target changed"
	case load.EventSnapshot:
		return "Snapshot"
	case load.EventCancelled:
		return "Run cancelled"
	case load.EventDrainTimeout:
		return "Grace period expired, abandoning in-flight iterations"
	case load.EventCompleted:
		return "Run completed"
	}
	return string(t)
}
