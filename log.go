package ppv2

import "go.uber.org/zap"

// defaultLogger is silent, matching the teacher's own logger-less
// posture: this module only speaks when a caller opts in via WithLogger.
func defaultLogger() *zap.Logger {
	return zap.NewNop()
}
