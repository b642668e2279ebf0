package logging

import (
	"log/slog"
	"path/filepath"
)

// Setup configures the default slog logger for the chronominer CLI. When
// debug is false, logging is discarded entirely (matching cagent's
// rootFlags.setupLogging default). When debug is true, logs go to a
// rotating file at logFilePath (or a default under stateDir) at debug
// level, leaving stdout free for the process/repair commands' own output.
func Setup(debug bool, logFilePath, stateDir string) (*RotatingFile, error) {
	if !debug {
		slog.SetDefault(slog.New(slog.DiscardHandler))
		return nil, nil
	}

	if logFilePath == "" {
		logFilePath = filepath.Join(stateDir, "chronominer.debug.log")
	}

	rf, err := NewRotatingFile(logFilePath)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(rf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return rf, nil
}
