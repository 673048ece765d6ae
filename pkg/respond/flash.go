package respond

import "github.com/vango-dev/viewbridge/pkg/protocol"

// FlashFragment is the fragment flash messages are rendered with. It
// receives the props "level" and "message".
const FlashFragment = "components/Flash"

// Level is the flash message level.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Flash adds an update of the flash element to s.
func Flash(s *protocol.Stream, level Level, message string) error {
	return s.Update(protocol.Target(DefaultErrorTarget), FlashFragment, protocol.Props{
		"level":   string(level),
		"message": message,
	})
}

// Success adds a success flash.
//
//	respond.Success(s, "Changes saved!")
func Success(s *protocol.Stream, message string) error {
	return Flash(s, LevelSuccess, message)
}

// Failure adds an error flash.
func Failure(s *protocol.Stream, message string) error {
	return Flash(s, LevelError, message)
}

// Warning adds a warning flash.
func Warning(s *protocol.Stream, message string) error {
	return Flash(s, LevelWarning, message)
}

// Info adds an info flash.
func Info(s *protocol.Stream, message string) error {
	return Flash(s, LevelInfo, message)
}
