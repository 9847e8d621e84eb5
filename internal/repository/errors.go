package repository

import (
	"errors"
	"fmt"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/queryir"
)

// SingleEntityNotFoundError reports that FindOneOrFail matched zero or
// several objects.
type SingleEntityNotFoundError struct {
	// Entity names the collection or table searched.
	Entity string

	// Count is the number of matches found.
	Count int

	// Criteria is the request as given, in object space.
	Criteria queryir.Criteria
}

// Error echoes the criteria as canonical JSON.
func (e *SingleEntityNotFoundError) Error() string {
	criteria, err := ir.MarshalCanonical(e.Criteria)
	if err != nil {
		criteria = []byte(fmt.Sprintf("%v", e.Criteria))
	}
	return fmt.Sprintf("found %d entities of type %s by the following criteria: %s", e.Count, e.Entity, criteria)
}

// IsSingleEntityNotFound returns true if err is a SingleEntityNotFoundError.
// Uses errors.As to handle wrapped errors.
func IsSingleEntityNotFound(err error) bool {
	var nf *SingleEntityNotFoundError
	return errors.As(err, &nf)
}
