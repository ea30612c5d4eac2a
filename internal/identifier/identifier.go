// Package identifier normalizes the (field, epoch, object) triple that names one
// spectrum in the archive.
//
// Raw values arrive as free text from query strings, CLI arguments and the
// catalog index. Normalization rules:
//  1. Whitespace is stripped from every component.
//  2. An empty field means "all" (every field the object was observed in).
//  3. Sentinel fields (all, allepoch, allepoch_apo, allepoch_lco) are matched
//     case-insensitively and kept as lowercase tokens.
//  4. A numeric field may carry a trailing "p" marker (legacy plate indicator).
//     The marker is recorded and stripped from the number.
//  5. The combined "field-mjd" form ("101126-60477") supplies both values at once.
//  6. A concrete field without an epoch, or any identifier without an object, is
//     an incomplete identifier and fails before any network access.
package identifier

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Sentinel field tokens.
const (
	All            = "all"
	AllEpoch       = "allepoch"
	AllEpochAPO    = "allepoch_apo"
	AllEpochLCO    = "allepoch_lco"
	plateMarker    = "p"
	fieldMJDSplits = 2
)

// Era thresholds. Fields up to legacyMaxField were observed with the original
// SDSS spectrograph, fields below sdssvMinField with BOSS/eBOSS.
const (
	legacyMaxField = 3006
	sdssvMinField  = 15000
)

//nolint:gochecknoglobals
var (
	// legacyExceptions are BOSS-range field numbers re-observed with the legacy spectrograph.
	legacyExceptions = map[int]bool{8015: true, 8033: true}

	sentinels = map[string]bool{All: true, AllEpoch: true, AllEpochAPO: true, AllEpochLCO: true}

	fieldPattern    = regexp.MustCompile(`^(\d+)(p?)$`)
	fieldMJDPattern = regexp.MustCompile(`^(\d+p?)-(\d+)$`)
	digitsPattern   = regexp.MustCompile(`^\d+$`)
)

var (
	// ErrInvalidIdentifier is the sentinel wrapped by every InputError.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrIncompleteIdentifier is returned when a required component is missing.
	ErrIncompleteIdentifier = errors.New("incomplete identifier")
)

// Era classifies a field by the instrument generation that observed it.
type Era int

const (
	// EraLegacy covers the original SDSS spectrograph plates.
	EraLegacy Era = iota
	// EraBOSS covers BOSS and eBOSS plates.
	EraBOSS
	// EraSDSSV covers SDSS-V plates, robotic FPS fields and all-epoch stacks.
	EraSDSSV
)

// String returns the era name used in logs and config files.
func (e Era) String() string {
	switch e {
	case EraLegacy:
		return "legacy"
	case EraBOSS:
		return "boss"
	case EraSDSSV:
		return "sdssv"
	default:
		return "unknown"
	}
}

// InputError reports which component of an identifier was rejected.
type InputError struct {
	Component string
	Value     string
	Reason    error
}

// Error implements the error interface.
func (e *InputError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s: %v", ErrInvalidIdentifier, e.Component, e.Reason)
	}

	return fmt.Sprintf("%s: %s %q: %v", ErrInvalidIdentifier, e.Component, e.Value, e.Reason)
}

// Unwrap exposes both the package sentinel and the specific reason to errors.Is.
func (e *InputError) Unwrap() []error {
	return []error{ErrInvalidIdentifier, e.Reason}
}

// Field is a normalized field: either a field number or a sentinel token.
type Field struct {
	Number      int
	Sentinel    string
	PlateSuffix bool
}

// IsSentinel reports whether the field is one of the sentinel tokens.
func (f Field) IsSentinel() bool {
	return f.Sentinel != ""
}

// IsAll reports whether the field asks for every field of an object.
func (f Field) IsAll() bool {
	return f.Sentinel == All
}

// IsStack reports whether the field names an all-epoch stack.
func (f Field) IsStack() bool {
	return f.IsSentinel() && !f.IsAll()
}

// Era returns the instrument generation of the field. Stacks only exist for SDSS-V.
func (f Field) Era() Era {
	if f.IsSentinel() {
		return EraSDSSV
	}

	return ClassifyEra(f.Number)
}

// String renders the field the way it appears in archive paths, without padding.
func (f Field) String() string {
	if f.IsSentinel() {
		return f.Sentinel
	}

	return strconv.Itoa(f.Number)
}

// Key renders the field including the plate marker so that distinct inputs stay distinct.
func (f Field) Key() string {
	if f.PlateSuffix {
		return f.String() + plateMarker
	}

	return f.String()
}

// ID is a normalized (field, epoch, object) identifier.
type ID struct {
	Field  Field
	MJD    int
	Object string
}

// HasMJD reports whether the identifier pins a single epoch.
func (id ID) HasMJD() bool {
	return id.MJD > 0
}

// String renders the identifier in the "field-mjd-object" form used by extras.
func (id ID) String() string {
	if !id.HasMJD() {
		return id.Field.Key() + "-" + id.Object
	}

	return fmt.Sprintf("%s-%d-%s", id.Field.Key(), id.MJD, id.Object)
}

// ClassifyEra maps a field number onto its era.
func ClassifyEra(field int) Era {
	switch {
	case field <= legacyMaxField || legacyExceptions[field]:
		return EraLegacy
	case field < sdssvMinField:
		return EraBOSS
	default:
		return EraSDSSV
	}
}

// ParseField normalizes a raw field value. An empty value means All.
func ParseField(raw string) (Field, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Field{Sentinel: All}, nil
	}

	lower := strings.ToLower(value)
	if sentinels[lower] {
		return Field{Sentinel: lower}, nil
	}

	matches := fieldPattern.FindStringSubmatch(lower)
	if matches == nil {
		return Field{}, &InputError{Component: "field", Value: value, Reason: errors.New("not a field number or sentinel")}
	}

	number, err := strconv.Atoi(matches[1])
	if err != nil {
		return Field{}, &InputError{Component: "field", Value: value, Reason: err}
	}

	return Field{Number: number, PlateSuffix: matches[2] == plateMarker}, nil
}

// ParseMJD normalizes a raw epoch. An empty value returns 0 (unset).
func ParseMJD(raw string) (int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, nil
	}

	if !digitsPattern.MatchString(value) {
		return 0, &InputError{Component: "mjd", Value: value, Reason: errors.New("not a number")}
	}

	mjd, err := strconv.Atoi(value)
	if err != nil || mjd <= 0 {
		return 0, &InputError{Component: "mjd", Value: value, Reason: errors.New("out of range")}
	}

	return mjd, nil
}

// ParseObject normalizes a raw object (catalog or fiber) ID.
func ParseObject(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", &InputError{Component: "object", Reason: ErrIncompleteIdentifier}
	}

	if !digitsPattern.MatchString(value) {
		return "", &InputError{Component: "object", Value: value, Reason: errors.New("not a number")}
	}

	return value, nil
}

// Normalize canonicalizes a raw identifier triple.
//
// The field may also be given in "field-mjd" form, in which case mjd must be
// empty or agree with it.
func Normalize(field, mjd, object string) (ID, error) {
	fieldValue := strings.TrimSpace(field)
	mjdValue := strings.TrimSpace(mjd)

	if parts := fieldMJDPattern.FindStringSubmatch(strings.ToLower(fieldValue)); parts != nil {
		if mjdValue != "" && strings.TrimLeft(mjdValue, "0") != strings.TrimLeft(parts[2], "0") {
			return ID{}, &InputError{
				Component: "mjd",
				Value:     mjdValue,
				Reason:    fmt.Errorf("conflicts with field %q", fieldValue),
			}
		}

		fieldValue, mjdValue = parts[1], parts[2]
	}

	f, err := ParseField(fieldValue)
	if err != nil {
		return ID{}, err
	}

	epoch, err := ParseMJD(mjdValue)
	if err != nil {
		return ID{}, err
	}

	obj, err := ParseObject(object)
	if err != nil {
		return ID{}, err
	}

	if !f.IsSentinel() && epoch == 0 {
		return ID{}, &InputError{Component: "mjd", Reason: ErrIncompleteIdentifier}
	}

	return ID{Field: f, MJD: epoch, Object: obj}, nil
}

// ParseExtra parses one comparison identifier in "field-mjd-object[@branch]" form.
// Extras always name a single spectrum, so every component is required.
func ParseExtra(raw string) (ID, string, error) {
	value := strings.TrimSpace(raw)
	branch := ""

	if at := strings.LastIndex(value, "@"); at >= 0 {
		value, branch = strings.TrimSpace(value[:at]), strings.TrimSpace(value[at+1:])
		if branch == "" {
			return ID{}, "", &InputError{Component: "extra", Value: raw, Reason: errors.New("empty branch after @")}
		}
	}

	parts := strings.Split(value, "-")
	if len(parts) < 3 { //nolint:mnd
		return ID{}, "", &InputError{Component: "extra", Value: raw, Reason: ErrIncompleteIdentifier}
	}

	// Sentinels such as allepoch_apo never contain "-", so the last two parts are
	// always the epoch and the object.
	object := parts[len(parts)-1]
	mjd := parts[len(parts)-2]
	field := strings.Join(parts[:len(parts)-2], "-")

	id, err := Normalize(field, mjd, object)
	if err != nil {
		return ID{}, "", err
	}

	if !id.HasMJD() || id.Field.IsAll() {
		return ID{}, "", &InputError{Component: "extra", Value: raw, Reason: ErrIncompleteIdentifier}
	}

	return id, branch, nil
}

// ParseExtras splits a comma-separated extras list. Blank entries are ignored.
func ParseExtras(raw string) ([]Extra, error) {
	var extras []Extra

	for _, item := range strings.Split(raw, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}

		id, branch, err := ParseExtra(item)
		if err != nil {
			return nil, err
		}

		extras = append(extras, Extra{ID: id, Branch: branch})
	}

	return extras, nil
}

// Extra is a comparison spectrum requested alongside the primary object.
type Extra struct {
	ID     ID
	Branch string
}

// String renders the extra in its input form.
func (e Extra) String() string {
	if e.Branch == "" {
		return e.ID.String()
	}

	return e.ID.String() + "@" + e.Branch
}
