// Package posterior provides the conjugate Beta model for an arm's unknown
// response probability: with a shared Beta(a0, b0) prior and s successes in
// s+f observed outcomes, the posterior is Beta(a0+s, b0+f).
package posterior

import (
	"math"

	"gonum.org/v1/gonum/stat/combin"
	"gonum.org/v1/gonum/stat/distuv"
)

// Beta is a Beta posterior over an arm's response probability.
type Beta struct {
	Alpha float64
	Beta  float64
}

// FromCounts returns the posterior for an arm with the given shared prior
// and accumulated counts.
func FromCounts(alpha0, beta0 float64, successes, failures int) Beta {
	return Beta{
		Alpha: alpha0 + float64(successes),
		Beta:  beta0 + float64(failures),
	}
}

// Update returns the posterior after observing additional outcomes.
func (b Beta) Update(successes, failures int) Beta {
	return Beta{
		Alpha: b.Alpha + float64(successes),
		Beta:  b.Beta + float64(failures),
	}
}

// Mean returns the posterior mean response probability.
func (b Beta) Mean() float64 {
	return b.Alpha / (b.Alpha + b.Beta)
}

// Variance returns the posterior variance.
func (b Beta) Variance() float64 {
	s := b.Alpha + b.Beta
	return b.Alpha * b.Beta / (s * s * (s + 1))
}

// CDF returns P(p <= x) under the posterior.
func (b Beta) CDF(x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	return b.dist().CDF(x)
}

// PDF returns the posterior density at x.
func (b Beta) PDF(x float64) float64 {
	return b.dist().Prob(x)
}

// PredictivePMF returns the beta-binomial probability of observing s
// successes among the next m outcomes under the posterior predictive
// distribution. Finite for all positive shape parameters, including the
// zero-successes and zero-failures extremes.
func (b Beta) PredictivePMF(m, s int) float64 {
	if s < 0 || s > m {
		return 0
	}
	if m == 0 {
		return 1
	}
	lp := combin.LogGeneralizedBinomial(float64(m), float64(s)) +
		lbeta(b.Alpha+float64(s), b.Beta+float64(m-s)) -
		lbeta(b.Alpha, b.Beta)
	return math.Exp(lp)
}

func (b Beta) dist() distuv.Beta {
	return distuv.Beta{Alpha: b.Alpha, Beta: b.Beta}
}

// lbeta is the logarithm of the Beta function.
func lbeta(a, b float64) float64 {
	la, _ := math.Lgamma(a)
	lb, _ := math.Lgamma(b)
	lab, _ := math.Lgamma(a + b)
	return la + lb - lab
}
