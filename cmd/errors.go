package cmd

import "fmt"

// FetchError wraps a failure to retrieve a target.
type FetchError struct {
	Target string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Target, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// InputError reports an unreadable or invalid input file.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid input %s", e.Path)
	}
	return fmt.Sprintf("invalid input %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }
