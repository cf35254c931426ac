package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// LogFilePath names the log file for one program run.
func LogFilePath(logsDir, program string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", program, sessionStart.Format("20060102_150405")),
	)
}
