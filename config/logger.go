package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger builds a logger writing to stdout. format is "json" or "text".
func NewLogger(level, format string) (*logrus.Logger, error) {
	logg := logrus.New()
	logg.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	logg.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "json":
		logg.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logg.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q", format)
	}
	return logg, nil
}
