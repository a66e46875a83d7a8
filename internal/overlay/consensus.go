package overlay

import (
	"slices"
	"strings"

	"code.dogecoin.org/kadchain/internal/spec"
)

// Consensus returns the neighbour list given by the most bootstraps.
// Ties go to the earliest answer. Lists are compared as sets of whole
// contacts (id, address, flags and key); empty answers (from peers that
// are not bootstraps) do not vote.
func Consensus(answers [][]spec.NodeInfo) []spec.NodeInfo {
	i := plurality(answers)
	if i < 0 {
		return nil
	}
	return answers[i]
}

func plurality(answers [][]spec.NodeInfo) int {
	counts := make(map[string]int)
	keys := make([]string, len(answers))
	for i, a := range answers {
		if len(a) == 0 {
			continue
		}
		keys[i] = answerKey(a)
		counts[keys[i]]++
	}
	best, bestCount := -1, 0
	for i, a := range answers {
		if len(a) == 0 {
			continue
		}
		if c := counts[keys[i]]; c > bestCount {
			best, bestCount = i, c
		}
	}
	return best
}

func answerKey(list []spec.NodeInfo) string {
	contacts := make([]string, 0, len(list))
	for _, n := range list {
		contacts = append(contacts, n.String())
	}
	slices.Sort(contacts)
	contacts = slices.Compact(contacts)
	return strings.Join(contacts, "\n")
}
