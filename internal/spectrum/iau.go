package spectrum

import (
	"fmt"
	"math"
)

const (
	hoursPerDegree = 24.0 / 360.0
	microsPerUnit  = 1e6
	// Designations truncate, never round, the last printed digit.
	raSecondDivisor  = 10_000  // micro-seconds to hundredths
	decSecondDivisor = 100_000 // micro-arcseconds to tenths
	approxTolerance  = 1e-9
)

// IAUName builds the SDSS designation "SDSS JHHMMSS.ss+DDMMSS.s" for a position in degrees.
//
// The sign follows the sign bit of dec, so -0 renders as "-". Sexagesimal parts
// that are within floating-point noise of a whole number snap to it before the
// fractional part is split off.
func IAUName(ra, dec float64) string {
	h, m, s := degreesToHMS(ra)
	d, am, as := degreesToDMS(dec)

	raHundredths := int64(math.Round(s*microsPerUnit)) / raSecondDivisor
	decTenths := int64(math.Round(as*microsPerUnit)) / decSecondDivisor

	sign := "+"
	if math.Signbit(dec) {
		sign = "-"
	}

	return fmt.Sprintf("SDSS J%02d%02d%02d.%02d%s%02d%02d%02d.%d",
		int64(h), int64(m), raHundredths/100, raHundredths%100,
		sign,
		int64(math.Abs(d)), int64(am), decTenths/10, decTenths%10,
	)
}

func degreesToHMS(angle float64) (float64, float64, float64) {
	hours := hoursPerDegree * math.Mod(angle, 360)

	return degreesToDMS(math.Mod(hours, 24))
}

// degreesToDMS splits angle into whole units, minutes and seconds. Minutes and
// seconds are returned as magnitudes; the whole part keeps its sign.
func degreesToDMS(angle float64) (float64, float64, float64) {
	rest, whole := splitSixty(math.Mod(angle, 360))
	seconds, minutes := splitSixty(rest)

	return whole, math.Abs(minutes), math.Abs(seconds)
}

// splitSixty returns (60 * fractional part, integral part) of x.
func splitSixty(x float64) (float64, float64) {
	whole, frac := math.Modf(snapToWhole(x))

	return 60 * frac, math.RoundToEven(whole)
}

func snapToWhole(x float64) float64 {
	nearest := math.RoundToEven(x)
	if math.Abs(x-nearest) <= approxTolerance*math.Max(math.Abs(x), math.Abs(nearest)) {
		return nearest
	}

	return x
}
