package cropdb

import (
	"slices"

	"github.com/3leaps/blockcheck/pkg/setup"
)

// LabelToCrops maps each label name to the numbers of the crops annotating
// any of its ids, in crop order. Labels found in no crop are returned
// separately, in label order, and are absent from the map.
func LabelToCrops(labels []setup.Label, crops []Crop) (map[string][]int, []string) {
	out := make(map[string][]int)
	for _, lbl := range labels {
		for _, c := range crops {
			if lbl.HasAny(c.PresentAnnotated) {
				out[lbl.Name] = append(out[lbl.Name], c.Number)
			}
		}
	}

	var unmatched []string
	for _, lbl := range labels {
		if _, ok := out[lbl.Name]; !ok && !slices.Contains(unmatched, lbl.Name) {
			unmatched = append(unmatched, lbl.Name)
		}
	}
	return out, unmatched
}
