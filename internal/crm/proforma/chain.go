package proforma

import "github.com/meridian-crm/meridian/internal/crm/docstate"

// ResolveActive picks the active PI for payment and display purposes out of
// a quotation's PI set: the approved tip of the revision chain. An approved
// revision supersedes its parent; a pending or rejected revision never does.
// Returns nil when no PI is approved.
func ResolveActive(pis []ProformaInvoice) *ProformaInvoice {
	approvedChildren := make(map[int64]*ProformaInvoice)
	var roots []*ProformaInvoice
	for i := range pis {
		pi := &pis[i]
		if pi.Status != docstate.PIApproved {
			continue
		}
		if pi.ParentPIID != nil {
			approvedChildren[*pi.ParentPIID] = pi
		} else {
			roots = append(roots, pi)
		}
	}

	walkToTip := func(start *ProformaInvoice) *ProformaInvoice {
		tip := start
		seen := map[int64]bool{tip.ID: true}
		for {
			child, ok := approvedChildren[tip.ID]
			if !ok || seen[child.ID] {
				return tip
			}
			seen[child.ID] = true
			tip = child
		}
	}

	// Prefer the most recently approved original's chain when several
	// originals exist for the quotation.
	var active *ProformaInvoice
	for _, root := range roots {
		tip := walkToTip(root)
		if active == nil || tip.UpdatedAt.After(active.UpdatedAt) {
			active = tip
		}
	}
	if active != nil {
		return active
	}

	// An approved revision whose original is missing from the slice still
	// resolves: walk from any approved revision without an approved parent.
	for i := range pis {
		pi := &pis[i]
		if pi.Status != docstate.PIApproved || pi.ParentPIID == nil {
			continue
		}
		parentApproved := false
		for j := range pis {
			if pis[j].ID == *pi.ParentPIID && pis[j].Status == docstate.PIApproved {
				parentApproved = true
				break
			}
		}
		if !parentApproved {
			tip := walkToTip(pi)
			if active == nil || tip.UpdatedAt.After(active.UpdatedAt) {
				active = tip
			}
		}
	}
	return active
}
