package logutils

import (
	"github.com/sirupsen/logrus"
)

// Log - общий логгер сервиса
var Log = logrus.New()

// Fields - поля структурированной записи
type Fields = logrus.Fields

func init() {
	Log.SetLevel(logrus.InfoLevel)
	Log.SetFormatter(&logrus.TextFormatter{
		TimestampFormat:           "2006-01-02 15:04:05",
		EnvironmentOverrideColors: true,
		FullTimestamp:             true,
	})
	Log.SetReportCaller(true)
}

// SetLevel выставляет уровень логирования из конфигурации.
// Неизвестный уровень оставляет текущий и возвращает ошибку.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Log.SetLevel(lvl)
	return nil
}

// Component возвращает запись с полем component, заменяет префиксы вида "[S3]"
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}
