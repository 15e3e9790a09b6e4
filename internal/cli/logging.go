package cli

import (
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"regsim/internal/trace"
)

const (
	logFormatConsole = "console"
	logFormatJSON    = "json"
)

// newLogger builds the process logger writing to w.
func newLogger(level, format string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, invalidInvocationf("invalid --log-level %q", level)
	}

	var enc zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(format)) {
	case logFormatConsole:
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewConsoleEncoder(cfg)
	case logFormatJSON:
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(cfg)
	default:
		return nil, invalidInvocationf("invalid --log-format %q (expected console|json)", format)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(lvl))
	return zap.New(core), nil
}

// eventLog echoes trace events at debug level.
type eventLog struct{ l *zap.Logger }

func (e eventLog) Record(ev trace.TraceEvent) {
	e.l.Debug("step event",
		zap.String("step", ev.TaskID),
		zap.String("kind", string(ev.Kind)),
		zap.String("reason", ev.Reason),
		zap.String("cause", ev.CauseTaskID),
		zap.Strings("artifacts", ev.Artifacts),
	)
}
