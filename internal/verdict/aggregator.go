// Package verdict maps a set of per-evidence NLI judgments onto a single
// claim verdict with a calibrated confidence. Aggregation is a pure
// function: identical inputs always produce identical verdicts.
package verdict

import (
	"math"
	"sort"
	"time"

	"github.com/truthgraph/truthgraph/internal/model"
)

// Aggregator holds the aggregation knobs. Zero values fall back to the
// documented defaults at construction.
type Aggregator struct {
	significanceThreshold float64
	truncationDiscount    float64
}

// NewAggregator creates an aggregator with the given thresholds
func NewAggregator(significanceThreshold, truncationDiscount float64) *Aggregator {
	if significanceThreshold <= 0 {
		significanceThreshold = 0.6
	}
	if truncationDiscount <= 0 || truncationDiscount > 1 {
		truncationDiscount = 0.5
	}
	return &Aggregator{
		significanceThreshold: significanceThreshold,
		truncationDiscount:    truncationDiscount,
	}
}

// Aggregate produces the verdict for a claim from its NLI results.
//
// Results are partitioned by dominant label; a result is significant when
// its dominant probability reaches the significance threshold. Only
// significant results enter the supporting set, so a weak match never
// appears as support for the verdict it did not help decide. Truncated
// results contribute at the configured discount in every weighted mean.
func (a *Aggregator) Aggregate(claim model.Claim, results []model.NLIResult) model.Verdict {
	v := model.Verdict{
		ClaimID:    claim.ID,
		Reasoning:  results,
		ProducedAt: time.Now().UTC(),
	}

	var entails, contradicts []model.NLIResult
	for _, r := range results {
		switch r.DominantLabel() {
		case model.LabelEntails:
			if r.PEntail >= a.significanceThreshold {
				entails = append(entails, r)
			}
		case model.LabelContradicts:
			if r.PContradict >= a.significanceThreshold {
				contradicts = append(contradicts, r)
			}
		}
	}

	switch {
	case len(entails) > 0 && len(contradicts) == 0:
		v.Label = model.VerdictSupported
		v.Confidence = a.weightedMean(entails, func(r model.NLIResult) float64 { return r.PEntail })
		v.SupportingEvidence = a.supporting(entails, func(r model.NLIResult) float64 { return r.PEntail })

	case len(contradicts) > 0 && len(entails) == 0:
		v.Label = model.VerdictRefuted
		v.Confidence = a.weightedMean(contradicts, func(r model.NLIResult) float64 { return r.PContradict })
		v.SupportingEvidence = a.supporting(contradicts, func(r model.NLIResult) float64 { return r.PContradict })

	case len(entails) > 0 && len(contradicts) > 0:
		// Both sides significant: the claim is contested. Confidence is the
		// gap between the two sides, near zero when they are balanced.
		meanE := a.weightedMean(entails, func(r model.NLIResult) float64 { return r.PEntail })
		meanC := a.weightedMean(contradicts, func(r model.NLIResult) float64 { return r.PContradict })
		v.Label = model.VerdictConflicting
		v.Confidence = clamp01(math.Abs(meanE - meanC))

	default:
		// No evidence, all neutral, or nothing significant.
		v.Label = model.VerdictInsufficientEvidence
		v.Confidence = a.insufficientConfidence(results)
	}

	return v
}

// weight returns the denominator weight of a result: retrieval similarity,
// defaulting to 1 when the retriever supplied none.
func weight(r model.NLIResult) float64 {
	if r.Similarity > 0 {
		return r.Similarity
	}
	return 1
}

// discount returns the truncation multiplier applied to a result's
// contribution. This compensates for evidence cut to fit the token budget.
func (a *Aggregator) discount(r model.NLIResult) float64 {
	if r.Truncated {
		return a.truncationDiscount
	}
	return 1
}

// weightedMean computes Σ(w·d·p) / Σ(w): similarity-weighted mean of the
// probability with the truncation discount applied to contributions only,
// so a lone truncated result still scores below its untruncated twin.
func (a *Aggregator) weightedMean(results []model.NLIResult, prob func(model.NLIResult) float64) float64 {
	var num, den float64
	for _, r := range results {
		w := weight(r)
		num += w * a.discount(r) * prob(r)
		den += w
	}
	if den == 0 {
		return 0
	}
	return clamp01(num / den)
}

// insufficientConfidence is 1 − mean(p_neutral); an empty result set yields 0.
func (a *Aggregator) insufficientConfidence(results []model.NLIResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.PNeutral
	}
	return clamp01(1 - sum/float64(len(results)))
}

// supporting orders the matching evidence ids by contribution weight
// descending, ties by id ascending.
func (a *Aggregator) supporting(results []model.NLIResult, prob func(model.NLIResult) float64) []string {
	type contribution struct {
		id     string
		weight float64
	}

	contribs := make([]contribution, len(results))
	for i, r := range results {
		contribs[i] = contribution{
			id:     r.EvidenceID,
			weight: weight(r) * a.discount(r) * prob(r),
		}
	}

	sort.Slice(contribs, func(i, j int) bool {
		if contribs[i].weight != contribs[j].weight {
			return contribs[i].weight > contribs[j].weight
		}
		return contribs[i].id < contribs[j].id
	})

	ids := make([]string, len(contribs))
	for i, c := range contribs {
		ids[i] = c.id
	}
	return ids
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
