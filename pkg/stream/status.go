package stream

import "time"

// Level is the severity of a status line.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelDanger  Level = "danger"
)

// Status is the user-visible status indicator.
type Status struct {
	Message string    `json:"message"`
	Level   Level     `json:"level"`
	Time    time.Time `json:"time"`
}

func newStatus(level Level, msg string) Status {
	return Status{Message: msg, Level: level, Time: time.Now()}
}
