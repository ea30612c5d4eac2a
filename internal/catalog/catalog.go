// Package catalog answers which (field, MJD) pairs exist for an object.
//
// The index is produced offline from the master spAll catalog as a JSON
// "dictionaries" file. It can be served straight from that file or imported
// into PostgreSQL; both backends implement Index.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// AllFields selects every field of a program.
const AllFields = "all"

var (
	// ErrUnknownObject is returned when the index has no epochs for a catalog ID.
	ErrUnknownObject = errors.New("object not in catalog index")

	// ErrUnknownProgram is returned for a program the index does not list.
	ErrUnknownProgram = errors.New("program not in catalog index")

	// ErrUnknownField is returned for a field the index does not list.
	ErrUnknownField = errors.New("field not in catalog index")

	// ErrMalformedIndex is returned when the dictionaries file cannot be decoded.
	ErrMalformedIndex = errors.New("malformed catalog index")
)

// Epoch is one observation of an object.
type Epoch struct {
	Field int64 `json:"field"`
	MJD   int64 `json:"mjd"`
	// Spec1G is the g-band synthetic flux of the first spectrograph.
	Spec1G float64 `json:"spec1G"`
	// MJDFinal is the fractional MJD of the last exposure, used to label traces.
	MJDFinal float64 `json:"mjdFinal"`
}

// UnmarshalJSON decodes the compact [field, mjd, spec1_g, mjd_final] form.
func (e *Epoch) UnmarshalJSON(data []byte) error {
	var parts []json.Number
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("%w: epoch %s: %w", ErrMalformedIndex, data, err)
	}

	if len(parts) < 2 {
		return fmt.Errorf("%w: epoch %s needs at least field and mjd", ErrMalformedIndex, data)
	}

	field, err := parseInt(parts[0])
	if err != nil {
		return fmt.Errorf("%w: epoch field %s: %w", ErrMalformedIndex, parts[0], err)
	}

	mjd, err := parseInt(parts[1])
	if err != nil {
		return fmt.Errorf("%w: epoch mjd %s: %w", ErrMalformedIndex, parts[1], err)
	}

	*e = Epoch{Field: field, MJD: mjd, MJDFinal: float64(mjd)}

	if len(parts) > 2 {
		if e.Spec1G, err = parts[2].Float64(); err != nil {
			return fmt.Errorf("%w: epoch spec1_g %s: %w", ErrMalformedIndex, parts[2], err)
		}
	}

	if len(parts) > 3 {
		if e.MJDFinal, err = parts[3].Float64(); err != nil {
			return fmt.Errorf("%w: epoch mjd_final %s: %w", ErrMalformedIndex, parts[3], err)
		}
	}

	return nil
}

// MarshalJSON encodes the compact form read by UnmarshalJSON.
func (e Epoch) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.Field, e.MJD, e.Spec1G, e.MJDFinal})
}

// Label is the display name of the epoch: its final MJD without trailing zeros.
func (e Epoch) Label() string {
	return strconv.FormatFloat(e.MJDFinal, 'f', -1, 64)
}

// Index looks up objects and their epochs.
type Index interface {
	// Epochs returns every known observation of catalogID in index order.
	Epochs(ctx context.Context, catalogID string) ([]Epoch, error)

	// Linked returns the other catalog IDs that refer to the same object.
	Linked(ctx context.Context, catalogID string) ([]string, error)

	// Programs lists program names in sorted order.
	Programs(ctx context.Context) ([]string, error)

	// Fields lists the fields of a program, including AllFields.
	Fields(ctx context.Context, program string) ([]string, error)

	// Objects lists the catalog IDs of a program field, or of the whole program for AllFields.
	Objects(ctx context.Context, program, field string) ([]string, error)

	// HealthCheck reports whether the index can serve requests.
	HealthCheck(ctx context.Context) error
}

// fieldKey is the key of the fieldIDs dictionary for a program field.
func fieldKey(program, field string) string {
	if strings.EqualFold(field, AllFields) {
		return program + "-" + AllFields
	}

	return field
}

func parseInt(n json.Number) (int64, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}

	f, err := n.Float64()
	if err != nil {
		return 0, err
	}

	if f != float64(int64(f)) {
		return 0, fmt.Errorf("not an integer: %s", n)
	}

	return int64(f), nil
}
