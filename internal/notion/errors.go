package notion

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/christopherklint97/togglsync/internal/docstore"
)

// Messages Notion uses when a request names a property the database does not have.
var missingPropertyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(.+?) is not a property that exists\.?$`),
	regexp.MustCompile(`^Could not find (?:sort )?property with name or id: (.+?)\.?$`),
}

func isValidationError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest && apiErr.Code == "validation_error"
}

// classify turns a validation error caused by a property the database lacks into a
// *docstore.SchemaFieldMissingError. The field is read from the error message when Notion names
// it, and otherwise confirmed against the database's property list. Any other error is
// returned unchanged.
func (c *Client) classify(ctx context.Context, container string, err error, names []string) error {
	if !isValidationError(err) {
		return err
	}
	var apiErr *APIError
	errors.As(err, &apiErr)

	for _, re := range missingPropertyPatterns {
		if m := re.FindStringSubmatch(strings.TrimSpace(apiErr.Message)); m != nil {
			field := strings.TrimSpace(m[1])
			for _, n := range names {
				if n == field {
					return &docstore.SchemaFieldMissingError{Container: container, Field: field}
				}
			}
		}
	}

	if container == "" || len(names) == 0 {
		return err
	}
	schema, schemaErr := c.DatabaseSchema(ctx, container)
	if schemaErr != nil {
		c.logger.Debug("could not load database schema", "database", container, "error", schemaErr)
		return err
	}
	for _, n := range names {
		if _, ok := schema[n]; !ok {
			return &docstore.SchemaFieldMissingError{Container: container, Field: n}
		}
	}
	return err
}
