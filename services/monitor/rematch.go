package monitor

import (
	"github.com/antzucaro/matchr"
)

// Derived keys fracture when a county reformats an address: the same
// record shows up as a New under a fresh key while its old key goes
// Removed. rematchDrifted re-attaches such pairs as a single Updated
// when the addresses are near-identical and the transaction dates
// agree. Below-threshold drift still fractures identity; that
// weakness is accepted.
const rematchSimilarity = 0.93

type rekey struct {
	oldKey string
	newKey string
}

func rematchDrifted(classified, removed []ClassifiedRecord) ([]ClassifiedRecord, []ClassifiedRecord, []rekey) {
	var rekeys []rekey
	matchedRemoved := make(map[string]bool)

	for i, c := range classified {
		if c.Classification != ClassificationNew || !c.Derived {
			continue
		}

		var mostSimilarity float64
		mostSimilar := -1

		for j, r := range removed {
			if !r.Derived || matchedRemoved[r.Key] {
				continue
			}
			if !r.Record.Date.IsZero() && !r.Record.Date.Equal(c.Record.Date) {
				continue
			}

			similarity := matchr.JaroWinkler(
				canonicalAddress(c.Record.Address),
				canonicalAddress(r.Record.Address),
				false,
			)
			if similarity > mostSimilarity {
				mostSimilarity = similarity
				mostSimilar = j
			}
		}

		if mostSimilar < 0 || mostSimilarity < rematchSimilarity {
			continue
		}

		match := removed[mostSimilar]
		matchedRemoved[match.Key] = true
		rekeys = append(rekeys, rekey{oldKey: match.Key, newKey: c.Key})

		classified[i] = ClassifiedRecord{
			Classification: ClassificationUpdated,
			Key:            c.Key,
			Derived:        true,
			Record:         c.Record,
			PreviousHash:   match.PreviousHash,
		}
	}

	if len(matchedRemoved) == 0 {
		return classified, removed, nil
	}

	keptRemoved := removed[:0]
	for _, r := range removed {
		if matchedRemoved[r.Key] {
			continue
		}
		keptRemoved = append(keptRemoved, r)
	}
	return classified, keptRemoved, rekeys
}
