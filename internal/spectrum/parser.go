package spectrum

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"
)

const (
	coaddTable   = "COADD"
	coaddIndex   = 1
	summaryTable = "SPALL"
	summaryIndex = 2
)

// Metadata attributes, each read from the first synonym column present.
const (
	attrRA          = "ra"
	attrDec         = "dec"
	attrField       = "field"
	attrMJD         = "mjd"
	attrCatalogID   = "catalogid"
	attrRedshift    = "z"
	attrRChi2       = "rchi2"
	attrZWarning    = "zwarning"
	attrClass       = "class"
	attrSubclass    = "subclass"
	attrRun2D       = "run2d"
	attrObservatory = "obs"
)

// synonyms lists the column names each attribute has used across data releases,
// most specific first. Lookups are case-insensitive.
//
//nolint:gochecknoglobals
var synonyms = map[string][]string{
	attrRA:          {"PLUG_RA", "RACAT", "RA"},
	attrDec:         {"PLUG_DEC", "DECCAT", "DEC"},
	attrField:       {"FIELD", "PLATE"},
	attrMJD:         {"MJD"},
	attrCatalogID:   {"CATALOGID"},
	attrRedshift:    {"Z"},
	attrRChi2:       {"RCHI2"},
	attrZWarning:    {"ZWARNING"},
	attrClass:       {"CLASS"},
	attrSubclass:    {"SUBCLASS"},
	attrRun2D:       {"RUN2D"},
	attrObservatory: {"OBS"},
}

// source is anything metadata values can be looked up in by column name.
type source interface {
	value(name string) (interface{}, bool)
}

// record is one table row keyed by lower-case column name.
type record map[string]interface{}

func (r record) value(name string) (interface{}, bool) {
	v, ok := r[strings.ToLower(name)]

	return v, ok && v != nil
}

// headerKeys are the primary header cards that describe the object itself.
// RA and DEC in the header are the pointing center, not the target.
//
//nolint:gochecknoglobals
var headerKeys = map[string]bool{
	"PLUG_RA": true, "PLUG_DEC": true, "FIELD": true, "PLATE": true,
	"MJD": true, "CATALOGID": true, "RUN2D": true, "OBS": true,
}

type headerSource struct {
	header *fitsio.Header
}

func (h headerSource) value(name string) (interface{}, bool) {
	if h.header == nil || !headerKeys[strings.ToUpper(name)] {
		return nil, false
	}

	card := h.header.Get(strings.ToUpper(name))
	if card == nil || card.Value == nil {
		return nil, false
	}

	return card.Value, true
}

// Parser decodes spectrum files.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a Parser that reports metadata inconsistencies on logger.
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse decodes a FITS spectrum file.
//
// The coadd table is located by name, else by position 1; the summary table by
// name, else by position 2. A missing summary table only degrades metadata.
// RUN2D and OBS are checked against expect; a disagreeing value is logged and
// replaced by Unknown.
func (p *Parser) Parse(data []byte, expect Expectation) (*Spectrum, error) {
	f, err := fitsio.Open(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	defer func() {
		_ = f.Close()
	}()

	coadd := findTable(f, coaddTable, coaddIndex)
	if coadd == nil {
		return nil, fmt.Errorf("%w: %w: %s", ErrMalformed, ErrMissingTable, coaddTable)
	}

	spec, err := readSamples(coadd)
	if err != nil {
		return nil, err
	}

	var sources []source

	if summary := findTable(f, summaryTable, summaryIndex); summary != nil {
		row, err := firstRecord(summary)
		if err != nil {
			p.logger.Warn("Failed to read spectrum summary table", slog.String("error", err.Error()))
		} else {
			sources = append(sources, row)
		}
	}

	if hdus := f.HDUs(); len(hdus) > 0 {
		sources = append(sources, headerSource{header: hdus[0].Header()})
	}

	spec.Metadata = buildMetadata(sources)
	p.reconcile(&spec.Metadata, expect)

	return spec, nil
}

func (p *Parser) reconcile(meta *Metadata, expect Expectation) {
	if expect.Branch != "" && meta.Run2D != Unknown && !strings.EqualFold(meta.Run2D, expect.Branch) {
		p.logger.Warn("Spectrum RUN2D does not match fetch branch",
			slog.String("run2d", meta.Run2D),
			slog.String("branch", expect.Branch),
		)

		meta.Run2D = Unknown
	}

	if expect.Observatory != "" && meta.Observatory != Unknown &&
		!strings.EqualFold(meta.Observatory, expect.Observatory) {
		p.logger.Warn("Spectrum OBS does not match fetch path",
			slog.String("obs", meta.Observatory),
			slog.String("expected", expect.Observatory),
		)

		meta.Observatory = Unknown
	}
}

// findTable returns the binary table called name, or the table at position index.
func findTable(f *fitsio.File, name string, index int) *fitsio.Table {
	hdus := f.HDUs()

	for _, hdu := range hdus {
		if table, ok := hdu.(*fitsio.Table); ok && strings.EqualFold(strings.TrimSpace(hdu.Name()), name) {
			return table
		}
	}

	if index < len(hdus) {
		if table, ok := hdus[index].(*fitsio.Table); ok {
			return table
		}
	}

	return nil
}

func readSamples(table *fitsio.Table) (*Spectrum, error) {
	columns := columnNames(table)

	flux, ok := columns["flux"]
	if !ok {
		return nil, fmt.Errorf("%w: %w: FLUX", ErrMalformed, ErrMissingColumn)
	}

	ivar, ok := columns["ivar"]
	if !ok {
		return nil, fmt.Errorf("%w: %w: IVAR", ErrMalformed, ErrMissingColumn)
	}

	wave, logarithmic := columns["loglam"]
	if !logarithmic {
		if wave, ok = columns["wave"]; !ok {
			return nil, fmt.Errorf("%w: %w: LOGLAM", ErrMalformed, ErrMissingColumn)
		}
	}

	rows, err := table.Read(0, table.NumRows())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	n := int(table.NumRows())
	spec := &Spectrum{
		Wavelength: make(Series, 0, n),
		Flux:       make(Series, 0, n),
		Error:      make(Series, 0, n),
	}

	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.Scan(&row); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}

		lambda, ok := toFloat(row[wave])
		if !ok {
			return nil, fmt.Errorf("%w: %w: %s at sample %d",
				ErrMalformed, ErrNonNumericSample, wave, len(spec.Wavelength))
		}

		if logarithmic {
			lambda = math.Pow(10, lambda)
		}

		if !(lambda > 0) {
			return nil, fmt.Errorf("%w: %w: got %v at sample %d",
				ErrMalformed, ErrInvalidWavelength, lambda, len(spec.Wavelength))
		}

		f, ok := toFloat(row[flux])
		if !ok {
			return nil, fmt.Errorf("%w: %w: %s at sample %d",
				ErrMalformed, ErrNonNumericSample, flux, len(spec.Wavelength))
		}

		iv, ok := toFloat(row[ivar])
		if !ok {
			return nil, fmt.Errorf("%w: %w: %s at sample %d",
				ErrMalformed, ErrNonNumericSample, ivar, len(spec.Wavelength))
		}

		spec.Wavelength = append(spec.Wavelength, lambda)
		spec.Flux = append(spec.Flux, f)
		spec.Error = append(spec.Error, InverseVarianceToSigma(iv))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if len(spec.Wavelength) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, ErrEmptySpectrum)
	}

	return spec, nil
}

// columnNames maps lower-case column names to their spelling in the file.
func columnNames(table *fitsio.Table) map[string]string {
	names := make(map[string]string, table.NumCols())
	for _, col := range table.Cols() {
		names[strings.ToLower(strings.TrimSpace(col.Name))] = col.Name
	}

	return names
}

func firstRecord(table *fitsio.Table) (record, error) {
	if table.NumRows() == 0 {
		return nil, ErrEmptySpectrum
	}

	rows, err := table.Read(0, 1)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = rows.Close()
	}()

	if !rows.Next() {
		return nil, rows.Err()
	}

	row := map[string]interface{}{}
	if err := rows.Scan(&row); err != nil {
		return nil, err
	}

	rec := make(record, len(row))
	for name, v := range row {
		rec[strings.ToLower(strings.TrimSpace(name))] = v
	}

	return rec, nil
}

func lookup(sources []source, attr string) (interface{}, bool) {
	for _, src := range sources {
		for _, name := range synonyms[attr] {
			if v, ok := src.value(name); ok {
				return v, true
			}
		}
	}

	return nil, false
}

func buildMetadata(sources []source) Metadata {
	meta := UnknownMetadata()

	str := func(attr string) string {
		if v, ok := lookup(sources, attr); ok {
			if s, ok := toString(v); ok {
				return s
			}
		}

		return Unknown
	}

	num := func(attr string) *float64 {
		if v, ok := lookup(sources, attr); ok {
			if f, ok := toFloat(v); ok && !math.IsNaN(f) {
				return &f
			}
		}

		return nil
	}

	integer := func(attr string) *int64 {
		if v, ok := lookup(sources, attr); ok {
			if i, ok := toInt(v); ok {
				return &i
			}
		}

		return nil
	}

	meta.Field = str(attrField)
	meta.MJD = integer(attrMJD)
	meta.CatalogID = str(attrCatalogID)
	meta.RA = num(attrRA)
	meta.Dec = num(attrDec)
	meta.Redshift = num(attrRedshift)
	meta.RChi2 = num(attrRChi2)
	meta.ZWarning = integer(attrZWarning)
	meta.Class = str(attrClass)
	meta.Subclass = str(attrSubclass)
	meta.Run2D = str(attrRun2D)

	if obs := str(attrObservatory); obs != Unknown {
		meta.Observatory = strings.ToUpper(obs)
	}

	if meta.RA != nil && meta.Dec != nil {
		meta.IAUName = IAUName(*meta.RA, *meta.Dec)
	}

	return meta
}

// scalar unwraps one-element vector cells, which some releases use for scalar values.
func scalar(v interface{}) interface{} {
	rv := reflect.ValueOf(v)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		if rv.Len() == 0 {
			return nil
		}

		return rv.Index(0).Interface()
	}

	return v
}

func toFloat(v interface{}) (float64, bool) {
	switch x := scalar(v).(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case int16:
		return float64(x), true
	case int8:
		return float64(x), true
	case int:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.Trim(x, "\x00")), 64)

		return f, err == nil
	default:
		return 0, false
	}
}

func toInt(v interface{}) (int64, bool) {
	switch x := scalar(v).(type) {
	case int64:
		return x, true
	case int32:
		return int64(x), true
	case int16:
		return int64(x), true
	case int8:
		return int64(x), true
	case int:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true //nolint:gosec
	case float64, float32, string:
		f, ok := toFloat(x)
		if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, false
		}

		return int64(f), true
	default:
		return 0, false
	}
}

func toString(v interface{}) (string, bool) {
	switch x := scalar(v).(type) {
	case string:
		s := strings.TrimSpace(strings.Trim(x, "\x00"))

		return s, s != ""
	case float32, float64:
		f, _ := toFloat(x)

		return strconv.FormatFloat(f, 'f', -1, 64), true
	default:
		if i, ok := toInt(x); ok {
			return strconv.FormatInt(i, 10), true
		}

		return "", false
	}
}
