// path: internal/infrastructure/services/logger.go
package services

import (
	"go.uber.org/zap"

	"github.com/techappsUT/threads-scheduler/internal/application/common"
)

// ZapLogger implements common.Logger over a *zap.SugaredLogger, so the admin
// HTTP surface logs through the same structured pipeline as the scheduler
// and worker packages.
type ZapLogger struct {
	log *zap.SugaredLogger
}

func NewZapLogger(log *zap.SugaredLogger) common.Logger {
	return &ZapLogger{log: log}
}

func (l *ZapLogger) Debug(msg string, fields ...interface{}) { l.log.Debugw(msg, fields...) }
func (l *ZapLogger) Info(msg string, fields ...interface{})  { l.log.Infow(msg, fields...) }
func (l *ZapLogger) Warn(msg string, fields ...interface{})  { l.log.Warnw(msg, fields...) }
func (l *ZapLogger) Error(msg string, fields ...interface{}) { l.log.Errorw(msg, fields...) }
