package rating

import "math"

// Abramowitz and Stegun 7.1.26.
const (
	erfA1 = 0.254829592
	erfA2 = -0.284496736
	erfA3 = 1.421413741
	erfA4 = -1.453152027
	erfA5 = 1.061405429
	erfP  = 0.3275911

	// ErfMaxError is the maximum absolute error of Erf.
	ErfMaxError = 1.5e-7
)

var invSqrt2Pi = 1 / math.Sqrt(2*math.Pi)

// Erf approximates the error function. It is odd and Erf(0) is exactly 0;
// the raw polynomial leaves a 1e-9 residue at the origin.
func Erf(x float64) float64 {
	if x == 0 {
		return 0
	}
	sign := 1.0
	if x < 0 {
		sign = -1
	}
	x = math.Abs(x)

	t := 1 / (1 + erfP*x)
	y := 1 - ((((erfA5*t+erfA4)*t+erfA3)*t+erfA2)*t+erfA1)*t*math.Exp(-x*x)
	return sign * y
}

// NormalCDF is the standard normal cumulative distribution.
func NormalCDF(x float64) float64 {
	return 0.5 * (1 + Erf(x/math.Sqrt2))
}

// NormalPDF is the standard normal density.
func NormalPDF(x float64) float64 {
	return invSqrt2Pi * math.Exp(-x*x/2)
}
