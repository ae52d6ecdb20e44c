package util

import (
	"fmt"
	"math"
)

// FormatValueFactor renders a value below 1 in magnitude with the
// m/u/n/p prefix that keeps its mantissa in [1,1000). Values of
// magnitude 1 or more are printed unscaled, and values below 1e-12 in
// exponent notation. fieldgen uses it for its voltage summary lines.
func FormatValueFactor(value float64, unit string) string {
	absValue := math.Abs(value)
	switch {
	case absValue >= 1:
		return fmt.Sprintf("%.3f %s", value, unit)
	case absValue >= 1e-3:
		return fmt.Sprintf("%.3f m%s", value*1e3, unit)
	case absValue >= 1e-6:
		return fmt.Sprintf("%.3f u%s", value*1e6, unit)
	case absValue >= 1e-9:
		return fmt.Sprintf("%.3f n%s", value*1e9, unit)
	case absValue >= 1e-12:
		return fmt.Sprintf("%.3f p%s", value*1e12, unit)
	default:
		return fmt.Sprintf("%.3e %s", value, unit)
	}
}
