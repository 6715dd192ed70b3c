package index

import (
	"errors"
	"fmt"
)

// IndexNotFoundError indicates the document index could not be opened
type IndexNotFoundError struct {
	Path   string
	Reason string // "never built" | "corrupt"
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("document index not found at %s (%s): run 'pdfchat index' to build it", e.Path, e.Reason)
}

// IsIndexNotFound checks if an error is an IndexNotFoundError
func IsIndexNotFound(err error) bool {
	var notFoundErr *IndexNotFoundError
	return errors.As(err, &notFoundErr)
}

// DimensionMismatchError indicates a vector's dimension does not match the
// dimension the index was built with.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: index expects %d, got %d", e.Want, e.Got)
}

// IsDimensionMismatch checks if an error is a DimensionMismatchError
func IsDimensionMismatch(err error) bool {
	var dimErr *DimensionMismatchError
	return errors.As(err, &dimErr)
}
