package convert

import "fmt"

type panicError struct {
	value any
}

func (e *panicError) Error() string { return fmt.Sprintf("decode panicked: %v", e.value) }
