package consts

const (
	CHARGE = 1.6021918e-19 // Elementary charge (C)

	// EpsilonGe is the relative permittivity of germanium.
	EpsilonGe = 16.0
	// EpsilonVacuum is the relative permittivity of the vacuum ditch region.
	EpsilonVacuum = 1.0

	// KappaBulk absorbs the bulk charge-to-potential conversion (e/eps0 in
	// mm*V units) used by the relaxation kernel: kappa = 0.7072 * 4 * h^2.
	KappaBulk = 0.7072

	// TRef is the reference temperature (K) the velocity table is measured
	// and normalized at.
	TRef = 77.0
	// TMin, TMax bound the valid range for Correct(T).
	TMin = 77.0
	TMax = 110.0
)
