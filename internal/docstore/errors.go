package docstore

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by GetDocument for an unknown id.
var ErrNotFound = errors.New("document not found")

// SchemaFieldMissingError reports that a container's schema has no property with the given
// name. It is the only failure the sync engine answers with a field-omission retry.
type SchemaFieldMissingError struct {
	Container string
	Field     string
}

func (e *SchemaFieldMissingError) Error() string {
	if e.Container == "" {
		return fmt.Sprintf("property %q does not exist in the container schema", e.Field)
	}
	return fmt.Sprintf("property %q does not exist in container %s", e.Field, e.Container)
}

// IsSchemaFieldMissing reports whether err is a schema drift error for field.
// An empty field matches any missing property.
func IsSchemaFieldMissing(err error, field string) bool {
	var sfm *SchemaFieldMissingError
	if !errors.As(err, &sfm) {
		return false
	}
	return field == "" || sfm.Field == field
}
