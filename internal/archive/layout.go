// Package archive maps normalized identifiers onto archive URLs.
//
// Every reduction branch belongs to exactly one path layout family and one base
// URL. Both are static tables: adding a new data release is a one-line edit to
// baseURLs and, if the release changed its directory scheme, one new Layout case.
package archive

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bhm-spectra/specviewer/internal/identifier"
)

// Layout is the directory scheme used by a reduction branch.
type Layout int

const (
	// LayoutFlat is the legacy per-plate layout: lite/{field4}/spec-{field4}-{mjd}-{fiber4}.fits.
	LayoutFlat Layout = iota
	// LayoutPlateSuffix is the transitional SDSS-V plate layout: lite/{field4}p/{mjd}/spec-{field4}-{mjd}-{obj11}.fits.
	LayoutPlateSuffix
	// LayoutFixedWidth is the early FPS layout: lite/{field6}/{mjd}/spec-{field6}-{mjd}-{obj}.fits.
	LayoutFixedWidth
	// LayoutGrouped is the current layout, bucketed by field group and a daily/allepoch segment.
	LayoutGrouped
)

// String returns the layout name used in logs.
func (l Layout) String() string {
	switch l {
	case LayoutFlat:
		return "flat"
	case LayoutPlateSuffix:
		return "plate-suffix"
	case LayoutFixedWidth:
		return "fixed-width"
	case LayoutGrouped:
		return "grouped"
	default:
		return "unknown"
	}
}

const (
	// AccessControlledBase is the proprietary SDSS-V working area. Requests under it need basic auth.
	AccessControlledBase = "https://data.sdss5.org/sas/sdsswork/bhm/boss/spectro/redux"

	dr18Base       = "https://data.sdss.org/sas/dr18/spectro/sdss/redux"
	fieldGroupSize = 1000
	dailySegment   = "daily"
	stackSegment   = "allepoch"
)

//nolint:gochecknoglobals
var (
	// baseURLs maps public-release branches onto their data release. Any other
	// branch lives in the access-controlled working area.
	baseURLs = map[string]string{
		"v5_4_45": "https://data.sdss.org/sas/dr9/sdss/spectro/redux",
		"v5_5_12": "https://data.sdss.org/sas/dr10/sdss/spectro/redux",
		"v5_6_5":  "https://data.sdss.org/sas/dr11/sdss/spectro/redux",
		"v5_7_0":  "https://data.sdss.org/sas/dr12/sdss/spectro/redux",
		"v5_7_2":  "https://data.sdss.org/sas/dr12/sdss/spectro/redux",
		"v5_9_0":  "https://data.sdss.org/sas/dr13/sdss/spectro/redux",
		"v5_10_0": "https://data.sdss.org/sas/dr15/sdss/spectro/redux",
		"v5_13_0": "https://data.sdss.org/sas/dr16/sdss/spectro/redux",
		"v5_13_2": dr18Base,
		"v6_0_4":  dr18Base,
		"26":      dr18Base,
		"103":     dr18Base,
		"104":     dr18Base,
	}

	flatBranch        = regexp.MustCompile(`^(v5_\d+_\d+|26|103|104)$`)
	plateSuffixBranch = regexp.MustCompile(`^v6_0_[1-4]$`)
	fixedWidthBranch  = regexp.MustCompile(`^v6_[01]_\d+$`)
)

var (
	// ErrUnresolvable is returned when an identifier cannot name a single file.
	ErrUnresolvable = errors.New("identifier does not name a single archive file")

	// ErrEmptyBranch is returned when no branch is given to Resolve.
	ErrEmptyBranch = errors.New("branch cannot be empty")
)

// NormalizeBranch trims and lowercases a branch tag. Branch matching is case-insensitive.
func NormalizeBranch(branch string) string {
	return strings.ToLower(strings.TrimSpace(branch))
}

// ClassifyLayout returns the layout family of a branch.
func ClassifyLayout(branch string) Layout {
	b := NormalizeBranch(branch)

	switch {
	case flatBranch.MatchString(b):
		return LayoutFlat
	case plateSuffixBranch.MatchString(b):
		return LayoutPlateSuffix
	case fixedWidthBranch.MatchString(b):
		return LayoutFixedWidth
	default:
		return LayoutGrouped
	}
}

// BaseURL returns the archive root that holds a branch.
func BaseURL(branch string) string {
	if base, ok := baseURLs[NormalizeBranch(branch)]; ok {
		return base
	}

	return AccessControlledBase
}

// IsPublic reports whether a branch is served from a public data release.
func IsPublic(branch string) bool {
	_, ok := baseURLs[NormalizeBranch(branch)]

	return ok
}

// Resolve renders the URL of one spectrum file. It performs no I/O.
func Resolve(id identifier.ID, branch string) (string, error) {
	b := NormalizeBranch(branch)
	if b == "" {
		return "", ErrEmptyBranch
	}

	if id.Field.IsAll() || !id.HasMJD() || id.Object == "" {
		return "", fmt.Errorf("%w: %s", ErrUnresolvable, id)
	}

	base := BaseURL(b) + "/" + b + "/spectra"
	field := id.Field.String()

	switch ClassifyLayout(b) {
	case LayoutFlat:
		field4 := zeroPad(field, 4)

		return fmt.Sprintf("%s/lite/%s/%s", base, field4, fileName(field4, id.MJD, zeroPad(id.Object, 4))), nil
	case LayoutPlateSuffix:
		field4 := zeroPad(field, 4)

		return fmt.Sprintf("%s/lite/%sp/%d/%s", base, field4, id.MJD, fileName(field4, id.MJD, zeroPad(id.Object, 11))), nil
	case LayoutFixedWidth:
		field6 := zeroPad(field, 6)

		return fmt.Sprintf("%s/lite/%s/%d/%s", base, field6, id.MJD, fileName(field6, id.MJD, id.Object)), nil
	default:
		field6 := zeroPad(field, 6)
		segment, group := groupedSegments(id.Field)

		return fmt.Sprintf("%s/%s/lite/%s/%s/%d/%s",
			base, segment, group, field6, id.MJD, fileName(field6, id.MJD, id.Object)), nil
	}
}

// groupedSegments returns the daily/allepoch segment and the field-group bucket.
// Stacks live under allepoch/lite/allepoch; numbered fields under daily/lite/NNNXXX.
func groupedSegments(f identifier.Field) (string, string) {
	if f.IsSentinel() {
		return stackSegment, stackSegment
	}

	return dailySegment, fmt.Sprintf("%03dXXX", f.Number/fieldGroupSize)
}

func fileName(field string, mjd int, object string) string {
	return fmt.Sprintf("spec-%s-%d-%s.fits", field, mjd, object)
}

// zeroPad left-pads numeric strings with zeros. Longer values and sentinels pass through.
func zeroPad(value string, width int) string {
	if len(value) >= width {
		return value
	}

	return strings.Repeat("0", width-len(value)) + value
}
