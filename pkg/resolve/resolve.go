// Package resolve orders competing correspondences and picks the one that
// applies. The ranking chain is: specificity (defined predicates) descending,
// matched-atom count descending, declaration order ascending. Ties past all
// three keys are reported, never guessed.
package resolve

import (
	"fmt"
	"slices"

	"github.com/coarsen-md/coarsen/pkg/match"
)

// AmbiguousMatchError reports two candidates the ranking chain cannot
// separate. It is returned only when the caller demands a unique winner.
type AmbiguousMatchError struct {
	Region string
	RuleA  string
	RuleB  string
}

// Error implements the error interface.
func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("ambiguous match at %s: %q and %q tie on specificity, size, and declaration order",
		e.Region, e.RuleA, e.RuleB)
}

// Compare orders two candidates by the ranking chain. Negative means a ranks
// before b.
func Compare(a, b match.Correspondence) int {
	if a.Specificity != b.Specificity {
		return b.Specificity - a.Specificity
	}

	if a.Size() != b.Size() {
		return b.Size() - a.Size()
	}

	return a.DeclIndex - b.DeclIndex
}

// Rank sorts candidates by the ranking chain, in place, and returns the
// slice. The sort is stable so input order decides between full ties.
func Rank(candidates []match.Correspondence) []match.Correspondence {
	slices.SortStableFunc(candidates, Compare)

	return candidates
}

// FilterContained drops every candidate whose bound node set is a strict
// subset of another candidate's. When one rule explains a superset of the
// atoms another explains, the larger match wins before the ranking chain
// runs.
func FilterContained(candidates []match.Correspondence) []match.Correspondence {
	kept := candidates[:0]

	for i, cand := range candidates {
		contained := false

		for j, other := range candidates {
			if i == j || cand.Size() >= other.Size() {
				continue
			}

			if other.Covers(cand) {
				contained = true

				break
			}
		}

		if !contained {
			kept = append(kept, cand)
		}
	}

	return kept
}

// First ranks the candidates and returns the winner. Full ties fall back to
// input order silently; use Pick when ties must surface.
func First(candidates []match.Correspondence) (match.Correspondence, bool) {
	if len(candidates) == 0 {
		return match.Correspondence{}, false
	}

	ranked := Rank(slices.Clone(candidates))

	return ranked[0], true
}

// Pick ranks the candidates and returns the unique winner. A tie between the
// top two candidates on all three keys yields an AmbiguousMatchError naming
// both rules and the region.
func Pick(region string, candidates []match.Correspondence) (match.Correspondence, error) {
	if len(candidates) == 0 {
		return match.Correspondence{}, fmt.Errorf("no candidate matches at %s", region)
	}

	ranked := Rank(slices.Clone(candidates))

	if len(ranked) > 1 && Compare(ranked[0], ranked[1]) == 0 {
		return match.Correspondence{}, &AmbiguousMatchError{
			Region: region,
			RuleA:  ranked[0].Rule,
			RuleB:  ranked[1].Rule,
		}
	}

	return ranked[0], nil
}

// Dedupe drops candidates that repeat an earlier candidate's rule over the
// same node set. Symmetric atoms produce such permutations; keeping the first
// binding makes the choice deterministic without raising a spurious
// ambiguity.
func Dedupe(candidates []match.Correspondence) []match.Correspondence {
	type key struct {
		rule  string
		nodes string
	}

	seen := map[key]bool{}
	kept := candidates[:0]

	for _, cand := range candidates {
		k := key{rule: cand.Rule, nodes: fmt.Sprint(cand.Nodes())}
		if seen[k] {
			continue
		}

		seen[k] = true
		kept = append(kept, cand)
	}

	return kept
}

// Regions groups candidates into overlap clusters: two candidates land in the
// same region when their node sets intersect, directly or transitively.
// Cluster order follows the first candidate of each cluster.
func Regions(candidates []match.Correspondence) [][]match.Correspondence {
	n := len(candidates)
	parent := make([]int, n)

	for i := range parent {
		parent[i] = i
	}

	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}

		return parent[i]
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if candidates[i].Overlaps(candidates[j]) {
				parent[find(i)] = find(j)
			}
		}
	}

	index := map[int]int{}
	var clusters [][]match.Correspondence

	for i := 0; i < n; i++ {
		root := find(i)

		at, ok := index[root]
		if !ok {
			at = len(clusters)
			index[root] = at
			clusters = append(clusters, nil)
		}

		clusters[at] = append(clusters[at], candidates[i])
	}

	return clusters
}
