package llm

import "fmt"

// Error is a transport-level failure from the chat endpoint.
// It carries the HTTP status code when the server responded at all.
type Error struct {
	// Op is the operation that failed ("chat").
	Op string
	// Status is the HTTP status code, or 0 when the request never
	// produced a response.
	Status int
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("llm %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// ParseError is the terminal failure mode of ChatJSON: the model never
// produced valid JSON within the retry budget. Raw carries the last
// response text for diagnostics; the client never substitutes partial
// or guessed data.
type ParseError struct {
	// Raw is the last raw response text.
	Raw string
	// Attempts is the number of completion calls made.
	Attempts int
	// Err is the final JSON decode error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("llm response is not valid JSON after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the underlying decode error for errors.Is/As support.
func (e *ParseError) Unwrap() error {
	return e.Err
}
