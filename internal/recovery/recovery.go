// Package recovery turns panics in event callbacks into errors.
package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// PanicError reports a panic recovered from a callback.
type PanicError struct {
	Name  string
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Name, e.Value)
}

// Call runs fn and returns its error. A panic inside fn is logged with its
// stack and returned as a *PanicError instead of unwinding the caller.
//
// Example:
//
//	err := recovery.Call(logger, "read callback", cb.Read)
func Call(logger *slog.Logger, name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			logger.Error("panic recovered",
				"callback", name,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(stack))
			err = &PanicError{Name: name, Value: r, Stack: stack}
		}
	}()

	return fn()
}
