package features

import (
	"fmt"

	"github.com/kailas-cloud/ltrkit/internal/domain"
)

// FormatError reports a malformed identifier or value in hit Hit.
type FormatError struct {
	Hit    int
	Field  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: hit %d: %s: %s", domain.ErrFormat.Error(), e.Hit, e.Field, e.Reason)
}

func (e *FormatError) Unwrap() error { return domain.ErrFormat }

// SchemaError reports a logged feature list that does not line up with the
// declared feature names.
type SchemaError struct {
	Hit    int
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: hit %d: %s", domain.ErrSchema.Error(), e.Hit, e.Reason)
}

func (e *SchemaError) Unwrap() error { return domain.ErrSchema }
