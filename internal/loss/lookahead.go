package loss

import (
	"math"
	"slices"

	"github.com/pmallia/mamsim/internal/posterior"
)

// lookahead returns the expected posterior loss after observing one batch of
// size batch per arm in cont, with expectation taken over the posterior
// predictive distribution of the batch's success counts.
func (e *Evaluator) lookahead(post []posterior.Beta, cont []int, batch int) float64 {
	if e.design.Arms.Control {
		return e.lookaheadControl(post, cont, batch)
	}
	return e.lookaheadEnum(post, cont, batch)
}

// lookaheadControl exploits the per-arm decomposition of the subset loss:
// conditional on the control's batch outcome, each experimental arm's
// contribution to the one-step-ahead minimum loss is an independent
// expectation, so the convolution costs O(batch^2 * arms) instead of
// (batch+1)^arms.
func (e *Evaluator) lookaheadControl(post []posterior.Beta, cont []int, batch int) float64 {
	control := post[e.design.ControlIndex()]
	mc := 0
	if slices.Contains(cont, e.design.ControlIndex()) {
		mc = batch
	}

	var total float64
	for sc := 0; sc <= mc; sc++ {
		wc := control.PredictivePMF(mc, sc)
		if wc == 0 {
			continue
		}
		nextControl := control.Update(sc, mc-sc)

		var sum float64
		for _, arm := range e.design.ExperimentalIndices() {
			mi := 0
			if slices.Contains(cont, arm) {
				mi = batch
			}
			for si := 0; si <= mi; si++ {
				wi := post[arm].PredictivePMF(mi, si)
				if wi == 0 {
					continue
				}
				q := e.ProbSuperior(post[arm].Update(si, mi-si), nextControl)
				sum += wi * math.Min(q, 1-q)
			}
		}
		total += wc * sum
	}
	return total
}

// lookaheadEnum is the direct binomial convolution: recursively enumerate
// every joint batch outcome over the continuing arms and weight the
// one-step-ahead stop-now loss by its predictive probability.
func (e *Evaluator) lookaheadEnum(post []posterior.Beta, cont []int, batch int) float64 {
	next := make([]posterior.Beta, len(post))
	copy(next, post)

	var rec func(idx int, w float64) float64
	rec = func(idx int, w float64) float64 {
		if idx == len(cont) {
			_, l := e.StopNow(next)
			return w * l
		}
		arm := cont[idx]
		saved := next[arm]
		var total float64
		for s := 0; s <= batch; s++ {
			pw := saved.PredictivePMF(batch, s)
			if pw == 0 {
				continue
			}
			next[arm] = saved.Update(s, batch-s)
			total += rec(idx+1, w*pw)
		}
		next[arm] = saved
		return total
	}
	return rec(0, 1)
}
