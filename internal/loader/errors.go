package loader

import (
	"errors"
	"fmt"
)

// Fetch failure kinds. Callers treat all of them as soft failures.
var (
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
	ErrInvalidReference  = errors.New("invalid resource reference")
	ErrIO                = errors.New("cannot read local file")
	ErrNetwork           = errors.New("network failure")
	ErrDecode            = errors.New("content is not valid UTF-8")
)

// HTTPStatusError is returned for any response other than 200 OK.
type HTTPStatusError struct {
	URL  string
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s: response status code: %d", e.URL, e.Code)
}
