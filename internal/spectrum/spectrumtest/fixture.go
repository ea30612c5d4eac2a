// Package spectrumtest writes small spectrum files for tests.
package spectrumtest

import (
	"bytes"
	"fmt"

	"github.com/astrogo/fitsio"
)

// Summary is the one-row object summary written to the SPALL table.
// fitsio prefixes string cells with a NUL byte, so each string column is
// wider than the longest value by at least one.
type Summary struct {
	RA        float64
	Dec       float64
	Field     int32
	MJD       int32
	CatalogID int64
	Z         float32
	RChi2     float32
	ZWarning  int32
	Class     string
	Subclass  string
	Run2D     string
	Obs       string
}

// Fixture describes a spectrum file.
type Fixture struct {
	LogLam []float32
	Flux   []float32
	IVar   []float32

	// Wave replaces LOGLAM with a linear wavelength column when set.
	Wave []float32

	// LogLamText writes LOGLAM as a text column holding these cells.
	LogLamText []string

	// Summary is written as a second table when non-nil.
	Summary *Summary

	// CoaddName and SummaryName default to COADD and SPALL.
	CoaddName   string
	SummaryName string

	// OmitFlux drops the FLUX column.
	OmitFlux bool
}

// Default returns a three-sample fixture with a complete summary for the given identity.
func Default(field, mjd int32, catalogID int64, run2d, obs string) Fixture {
	return Fixture{
		LogLam: []float32{3.5, 3.6, 3.7},
		Flux:   []float32{1.5, 2.5, 3.5},
		IVar:   []float32{4, 0, 1},
		Summary: &Summary{
			RA:        188.737042,
			Dec:       1.396,
			Field:     field,
			MJD:       mjd,
			CatalogID: catalogID,
			Z:         1.25,
			RChi2:     1.1,
			Class:     "QSO",
			Subclass:  "BROADLINE",
			Run2D:     run2d,
			Obs:       obs,
		},
	}
}

// Encode writes fx as a FITS file.
func Encode(fx Fixture) ([]byte, error) {
	var buf bytes.Buffer

	f, err := fitsio.Create(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create fits file: %w", err)
	}

	primary, err := fitsio.NewPrimaryHDU(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create primary hdu: %w", err)
	}

	if err := f.Write(primary); err != nil {
		return nil, fmt.Errorf("failed to write primary hdu: %w", err)
	}

	if err := writeCoadd(f, fx); err != nil {
		return nil, err
	}

	if fx.Summary != nil {
		if err := writeSummary(f, fx); err != nil {
			return nil, err
		}
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close fits file: %w", err)
	}

	return buf.Bytes(), nil
}

// MustEncode is Encode for fixtures known to be valid.
func MustEncode(fx Fixture) []byte {
	data, err := Encode(fx)
	if err != nil {
		panic(err)
	}

	return data
}

func writeCoadd(f *fitsio.File, fx Fixture) error {
	name := fx.CoaddName
	if name == "" {
		name = "COADD"
	}

	grid, gridName := fx.LogLam, "LOGLAM"
	if fx.Wave != nil {
		grid, gridName = fx.Wave, "WAVE"
	}

	gridFormat := "E"
	if fx.LogLamText != nil {
		gridFormat = "16A"
	}

	cols := []fitsio.Column{{Name: gridName, Format: gridFormat}}
	if !fx.OmitFlux {
		cols = append(cols, fitsio.Column{Name: "FLUX", Format: "E"})
	}

	cols = append(cols, fitsio.Column{Name: "IVAR", Format: "E"})

	table, err := fitsio.NewTable(name, cols, fitsio.BINARY_TBL)
	if err != nil {
		return fmt.Errorf("failed to create coadd table: %w", err)
	}

	defer func() {
		_ = table.Close()
	}()

	for i := range fx.Flux {
		var g interface{}
		if fx.LogLamText != nil {
			text := fx.LogLamText[i]
			g = &text
		} else {
			v := grid[i]
			g = &v
		}

		flux, ivar := fx.Flux[i], fx.IVar[i]

		if fx.OmitFlux {
			err = table.Write(g, &ivar)
		} else {
			err = table.Write(g, &flux, &ivar)
		}

		if err != nil {
			return fmt.Errorf("failed to write coadd row: %w", err)
		}
	}

	if err := f.Write(table); err != nil {
		return fmt.Errorf("failed to write coadd table: %w", err)
	}

	return nil
}

func writeSummary(f *fitsio.File, fx Fixture) error {
	name := fx.SummaryName
	if name == "" {
		name = "SPALL"
	}

	table, err := fitsio.NewTable(name, []fitsio.Column{
		{Name: "PLUG_RA", Format: "D"},
		{Name: "PLUG_DEC", Format: "D"},
		{Name: "FIELD", Format: "J"},
		{Name: "MJD", Format: "J"},
		{Name: "CATALOGID", Format: "K"},
		{Name: "Z", Format: "E"},
		{Name: "RCHI2", Format: "E"},
		{Name: "ZWARNING", Format: "J"},
		{Name: "CLASS", Format: "12A"},
		{Name: "SUBCLASS", Format: "24A"},
		{Name: "RUN2D", Format: "16A"},
		{Name: "OBS", Format: "8A"},
	}, fitsio.BINARY_TBL)
	if err != nil {
		return fmt.Errorf("failed to create summary table: %w", err)
	}

	defer func() {
		_ = table.Close()
	}()

	s := *fx.Summary
	if err := table.Write(
		&s.RA, &s.Dec, &s.Field, &s.MJD, &s.CatalogID, &s.Z, &s.RChi2, &s.ZWarning,
		&s.Class, &s.Subclass, &s.Run2D, &s.Obs,
	); err != nil {
		return fmt.Errorf("failed to write summary row: %w", err)
	}

	if err := f.Write(table); err != nil {
		return fmt.Errorf("failed to write summary table: %w", err)
	}

	return nil
}
