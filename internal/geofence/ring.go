package geofence

// ValidateRing checks that a ring is a usable closed polygon: first
// vertex equals last, at least three distinct vertices, and every
// coordinate within range.
func ValidateRing(ring []Point) error {
	if len(ring) < 4 {
		// A closed triangle is 4 points (first repeated at the end).
		return ErrRingTooSmall
	}
	if ring[0] != ring[len(ring)-1] {
		return ErrRingNotClosed
	}

	distinct := make(map[Point]struct{}, len(ring))
	for _, p := range ring {
		if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
			return ErrInvalidCoordinate
		}
		distinct[p] = struct{}{}
	}
	if len(distinct) < 3 {
		return ErrRingTooSmall
	}
	return nil
}

// Contains reports whether the point lies inside the closed ring,
// using a ray cast eastward from the point.
//
// Boundary behaviour follows the half-open edge rule the cast implies:
// points on a west- or south-facing edge count as inside, points on an
// east- or north-facing edge count as outside. Callers must not rely
// on any particular outcome for points exactly on the boundary beyond
// that rule.
func Contains(ring []Point, lat, lng float64) bool {
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		vi, vj := ring[i], ring[j]
		if (vi.Lat > lat) == (vj.Lat > lat) {
			continue
		}
		// Longitude of the edge at this latitude.
		crossing := (vj.Lng-vi.Lng)*(lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lng
		if lng < crossing {
			inside = !inside
		}
	}
	return inside
}
