// Package spectrum decodes archive spectrum files.
//
// A spectrum file is a FITS container with a coadded binary table (wavelength
// grid, flux, inverse variance) and a one-row summary table describing the
// object. Parse converts both into a Spectrum ready for plotting: wavelength
// in Angstrom, flux, and 1-sigma error derived from the inverse variance.
package spectrum

import (
	"encoding/json"
	"errors"
	"math"
)

// Unknown is the value of any string metadata that is absent or failed validation.
const Unknown = "unknown"

var (
	// ErrMalformed is the parent of every decoding error.
	ErrMalformed = errors.New("malformed spectrum file")

	ErrMissingTable      = errors.New("spectrum table not found")
	ErrMissingColumn     = errors.New("required column not found")
	ErrEmptySpectrum     = errors.New("spectrum has no samples")
	ErrInvalidWavelength = errors.New("wavelength must be strictly positive")
	ErrNonNumericSample  = errors.New("sample is not numeric")
)

// Series is a float array whose non-finite values encode as JSON null.
type Series []float64

// MarshalJSON implements json.Marshaler.
func (s Series) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}

	values := make([]*float64, len(s))

	for i := range s {
		if math.IsNaN(s[i]) || math.IsInf(s[i], 0) {
			continue
		}

		values[i] = &s[i]
	}

	return json.Marshal(values)
}

// Metadata describes the observed object. Numeric fields are nil when the file
// does not carry them; string fields are Unknown.
type Metadata struct {
	Field       string   `json:"field"`
	MJD         *int64   `json:"mjd"`
	CatalogID   string   `json:"catalogId"`
	RA          *float64 `json:"ra"`
	Dec         *float64 `json:"dec"`
	IAUName     string   `json:"iauName"`
	Redshift    *float64 `json:"z"`
	RChi2       *float64 `json:"rchi2"`
	ZWarning    *int64   `json:"zwarning"`
	Class       string   `json:"class"`
	Subclass    string   `json:"subclass"`
	Run2D       string   `json:"run2d"`
	Observatory string   `json:"observatory"`
}

// UnknownMetadata returns metadata with every field unset.
func UnknownMetadata() Metadata {
	return Metadata{
		Field:       Unknown,
		CatalogID:   Unknown,
		IAUName:     Unknown,
		Class:       Unknown,
		Subclass:    Unknown,
		Run2D:       Unknown,
		Observatory: Unknown,
	}
}

// Spectrum is one decoded file. Wavelength, Flux and Error have equal length.
type Spectrum struct {
	Metadata   Metadata
	Wavelength Series
	Flux       Series
	Error      Series
}

// Len returns the number of samples.
func (s *Spectrum) Len() int {
	return len(s.Wavelength)
}

// Expectation describes what the fetch path implies about a file's contents.
type Expectation struct {
	// Branch is the reduction branch the file was fetched from.
	Branch string

	// Observatory is the site implied by the field sentinel, or empty.
	Observatory string
}

// InverseVarianceToSigma converts an inverse variance to a standard deviation.
// Zero or negative inverse variance means the sample carries no information
// and yields +Inf.
func InverseVarianceToSigma(ivar float64) float64 {
	if ivar <= 0 {
		return math.Inf(1)
	}

	return 1 / math.Sqrt(ivar)
}
