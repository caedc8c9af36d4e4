package device

// Partition splits already discovered attributes against a requested UUID set.
//
// found holds the available attributes whose UUID was requested (first occurrence
// per UUID, in available order). missing holds the requested UUIDs with no match,
// normalized and de-duplicated, in request order. Callers must not consult the
// cache when requested is empty: an empty request means "discover everything".
func Partition[A Attribute](requested []string, available []A) (found []A, missing []string) {
	wanted := make(map[string]struct{}, len(requested))
	order := make([]string, 0, len(requested))
	for _, u := range requested {
		n := NormalizeUUID(u)
		if _, dup := wanted[n]; dup {
			continue
		}
		wanted[n] = struct{}{}
		order = append(order, n)
	}

	seen := make(map[string]struct{}, len(order))
	for _, a := range available {
		n := NormalizeUUID(a.UUID())
		if _, ok := wanted[n]; !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		found = append(found, a)
	}

	for _, n := range order {
		if _, ok := seen[n]; !ok {
			missing = append(missing, n)
		}
	}
	return found, missing
}
