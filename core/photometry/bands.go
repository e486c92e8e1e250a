package photometry

// Effective wavelengths of the ugrizy band set, in nanometers.
var bandWavelengthNm = [6]float64{367.1, 482.7, 622.3, 754.6, 869.1, 971.0}

// referenceWavelengthNm is the wavelength at which MagNorm normalizes a
// template's flux density.
const referenceWavelengthNm = 500.0

// fluxFloor is the numerical floor below which a flux has no defined
// log-magnitude.
const fluxFloor = 1e-30
