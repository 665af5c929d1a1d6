// Package validate gates merged records before they enter aggregation.
package validate

import (
	"fmt"
	"strings"

	"github.com/StanfordSNR/puffer-statistics-sub000/internal/record"
)

// IncompleteRecordError is returned for a record that never received every
// required field. It indicates a structural ingestion problem and aborts the
// run.
type IncompleteRecordError struct {
	Kind      record.Kind
	Entity    record.EntityKey
	Timestamp int64
	Missing   []string
}

func (e *IncompleteRecordError) Error() string {
	return fmt.Sprintf("incomplete %s record with timestamp %d (%s): missing %s",
		e.Kind, e.Timestamp, e.Entity, strings.Join(e.Missing, ","))
}

// Validator counts bad records per kind and rejects incomplete ones.
type Validator struct {
	bad      [len(record.Kinds)]int
	admitted [len(record.Kinds)]int
}

// New returns a validator with zeroed counters.
func New() *Validator {
	return &Validator{}
}

// Admit decides whether r may participate in aggregation.
//
// A bad record is counted and excluded (false, nil). An incomplete record
// returns *IncompleteRecordError. Bad takes precedence: a contradictory
// record is excluded even if it is also incomplete.
func (v *Validator) Admit(kind record.Kind, entity record.EntityKey, ts int64, r *record.Record) (bool, error) {
	if r.Bad() {
		v.bad[kind]++
		return false, nil
	}
	if !r.Complete() {
		return false, &IncompleteRecordError{
			Kind:      kind,
			Entity:    entity,
			Timestamp: ts,
			Missing:   r.Missing(),
		}
	}
	v.admitted[kind]++
	return true, nil
}

// Bad returns the number of bad records excluded for kind.
func (v *Validator) Bad(kind record.Kind) int { return v.bad[kind] }

// Admitted returns the number of records admitted for kind.
func (v *Validator) Admitted(kind record.Kind) int { return v.admitted[kind] }

// TotalBad returns the number of bad records across kinds.
func (v *Validator) TotalBad() int {
	n := 0
	for _, c := range v.bad {
		n += c
	}
	return n
}
