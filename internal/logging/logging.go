package logging

import (
	"os"
	"strings"

	"github.com/apsdehal/go-logger"
)

// New builds the application logger. Level is DEBUG or INFO; anything else
// falls back to INFO.
func New(module, level string) *logger.Logger {
	l, err := logger.New(module, 1, os.Stdout)
	if err != nil {
		panic(err)
	}
	l.SetFormat("%{time} [%{module}] [%{level}] %{message}")

	if strings.EqualFold(level, "DEBUG") {
		l.SetLogLevel(logger.DebugLevel)
	} else {
		l.SetLogLevel(logger.InfoLevel)
	}
	return l
}
