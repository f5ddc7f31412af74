package reconcile

import (
	"sort"

	"github.com/tmorales/waresync-backend/internal/detector"
	"github.com/tmorales/waresync-backend/pkg/enums"
	"github.com/tmorales/waresync-backend/pkg/marketplace"
)

// Candidate pairs a removal-eligible SKU with its downstream listing.
type Candidate struct {
	SKU       string
	ListingID string
	Reason    enums.RemovalReason
}

// Candidates returns the listings that must be retracted downstream: those
// whose key matches a vanished SKU or a SKU whose stock dropped to zero.
// The retained map carries ledger entries that survived an earlier failed
// deletion; the snapshot swap silences the diff for those SKUs, so without
// the union they would never be offered for removal again. Reasons from the
// current diff win on overlap. Listings matching no eligible SKU are
// untouched.
func Candidates(changes detector.ChangeSet, retained map[string]enums.RemovalReason, listings []marketplace.Listing) []Candidate {
	eligible := changes.RemovalEligible()
	for sku, reason := range retained {
		if _, ok := eligible[sku]; !ok {
			eligible[sku] = reason
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	out := make([]Candidate, 0, len(eligible))
	for _, listing := range listings {
		reason, ok := eligible[listing.Key()]
		if !ok {
			continue
		}
		out = append(out, Candidate{
			SKU:       listing.Key(),
			ListingID: listing.ID,
			Reason:    reason,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out
}
