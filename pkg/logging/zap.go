package logging

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewJSONLogger returns a logr.Logger writing structured JSON records through zap to the given
// output paths ("stderr" when none are given). Verbosity follows the SimpleLogSink levels.
func NewJSONLogger(verbosity int, outputPaths ...string) (logr.Logger, error) {
	if len(outputPaths) == 0 {
		outputPaths = []string{"stderr"}
	}
	zapConfig := zap.NewProductionConfig()
	zapConfig.OutputPaths = outputPaths
	zapConfig.Sampling = nil
	// zapr logs V(n) at zap level -n
	zapConfig.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))

	logger, err := zapConfig.Build()
	if err != nil {
		return logr.Discard(), fmt.Errorf("failed to initialize logger: %w", err)
	}
	return zapr.NewLogger(logger), nil
}
