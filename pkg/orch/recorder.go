package orch

import "go.uber.org/zap"

// ZapRecorder writes audit lines through a dedicated zap logger,
// typically one configured to append bare lines to the record file.
type ZapRecorder struct {
	logger *zap.Logger
}

// NewZapRecorder wraps a logger as a Recorder.
func NewZapRecorder(logger *zap.Logger) *ZapRecorder {
	return &ZapRecorder{logger: logger}
}

// Record implements Recorder.
func (r *ZapRecorder) Record(line string) {
	r.logger.Info(line)
}
