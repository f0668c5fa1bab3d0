package voxpro

import "voxpro/model"

// Lookup returns the authoritative assignment for keySlot: the matching row
// with the newest CreatedAt. The result does not depend on input order.
func Lookup(assignments []model.Assignment, keySlot string) (model.Assignment, bool) {
	var best model.Assignment
	found := false
	for _, a := range assignments {
		if a.KeySlot != keySlot {
			continue
		}
		if !found || a.NewerThan(best) {
			best = a
			found = true
		}
	}
	return best, found
}

// LatestBySlot projects rows into one authoritative assignment per slot.
func LatestBySlot(assignments []model.Assignment) map[string]model.Assignment {
	out := make(map[string]model.Assignment)
	for _, a := range assignments {
		if cur, ok := out[a.KeySlot]; !ok || a.NewerThan(cur) {
			out[a.KeySlot] = a
		}
	}
	return out
}
