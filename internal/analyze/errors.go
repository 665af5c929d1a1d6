package analyze

import (
	"errors"
	"fmt"

	"github.com/StanfordSNR/puffer-statistics-sub000/internal/identity"
)

var (
	errMissingTag = errors.New("missing")
	errBadServer  = errors.New("server id must be a positive integer")
)

// TagError reports a tag needed to route a point that is absent or invalid.
type TagError struct {
	Measurement string
	Tag         string
	Value       string
	Err         error
}

func (e *TagError) Error() string {
	return fmt.Sprintf("%s: tag %s=%q: %v", e.Measurement, e.Tag, e.Value, e.Err)
}

func (e *TagError) Unwrap() error { return e.Err }

// ClientInfoConflictError reports two complete, admitted client-info records
// for the same key that disagree.
type ClientInfoConflictError struct {
	Key      identity.ClientInfoKey
	Existing string
	Incoming string
}

func (e *ClientInfoConflictError) Error() string {
	return fmt.Sprintf("contradictory client info for init_id=%d user=%d expt=%d: %s vs %s",
		e.Key.InitID, e.Key.UserID, e.Key.ExptID, e.Existing, e.Incoming)
}
