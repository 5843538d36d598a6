package command

import "strings"

// Handler answers one textual command. Responses start with "OK:" or "ERROR:".
type Handler interface {
	HandleCommand(cmd string) string
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(cmd string) string

// HandleCommand calls f(cmd).
func (f HandlerFunc) HandleCommand(cmd string) string {
	return f(cmd)
}

// IsEcho reports whether line is a response echoed back by the peer rather
// than a command.
func IsEcho(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "OK:") || strings.HasPrefix(line, "ERROR:")
}

// normalize trims line and reports whether it is a command worth handling.
func normalize(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || IsEcho(line) {
		return "", false
	}
	return line, true
}
