package photometry

import "math"

// odonnellAB evaluates the optical-range O'Donnell (1994) extinction
// law coefficients a(x) and b(x), with x = 1/lambda in inverse microns.
// The total extinction in magnitudes at wavelength lambda is then
// A_lambda = A_v * (a(x) + b(x)/R_v).
func odonnellAB(x float64) (float64, float64) {
	// The polynomial fit is valid for 1.1 <= x <= 3.3; clamp outside
	// so pathological wavelengths degrade gracefully instead of
	// extrapolating the polynomial.
	if x < 1.1 {
		x = 1.1
	}
	if x > 3.3 {
		x = 3.3
	}
	y := x - 1.82
	a := 1.0 + y*(0.104+y*(-0.609+y*(0.701+y*(1.137+y*(-1.718+y*(-0.827+y*(1.647-y*0.505)))))))
	b := y * (1.952 + y*(2.908+y*(-3.989+y*(-7.985+y*(11.102+y*(5.491+y*(-10.805+y*3.347)))))))
	return a, b
}

// dustAttenuation returns the multiplicative flux attenuation at the
// given wavelength (nm) for dust parameters (av, rv). An rv of zero is
// treated as no dust.
func dustAttenuation(wavelengthNm, av, rv float64) float64 {
	if rv == 0 || av == 0 {
		return 1.0
	}
	x := 1000.0 / wavelengthNm // inverse microns
	a, b := odonnellAB(x)
	aLambda := av * (a + b/rv)
	return math.Pow(10, -0.4*aLambda)
}

// magFromFlux converts a flux to a magnitude, returning NaN for fluxes
// at or below the numerical floor.
func magFromFlux(flux float64) float64 {
	if !(flux > fluxFloor) {
		return math.NaN()
	}
	return -2.5 * math.Log10(flux)
}
