package fbref

import (
	"errors"
	"fmt"
)

// ErrExtraction matches every *ExtractionError.
var ErrExtraction = errors.New("extraction failed")

// ExtractionError is returned when a fetched page does not contain the
// element the scraper expects.
type ExtractionError struct {
	Url    string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %s", e.Url, e.Reason)
}

func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtraction
}
