package sync3

import "sort"

// SliceRanges are inclusive [start, end] index pairs into a list.
type SliceRanges [][2]int64

func (r SliceRanges) Valid() bool {
	for _, sr := range r {
		// always goes from start to end
		if sr[1] < sr[0] {
			return false
		}
		if sr[0] < 0 {
			return false
		}
	}
	return true
}

// Inside returns true if i is inside the range
func (r SliceRanges) Inside(i int64) bool {
	for _, sr := range r {
		if sr[0] <= i && i <= sr[1] {
			return true
		}
	}
	return false
}

// Highest returns the highest index covered, or -1 if there are no ranges.
func (r SliceRanges) Highest() int64 {
	highest := int64(-1)
	for _, sr := range r {
		if sr[1] > highest {
			highest = sr[1]
		}
	}
	return highest
}

// Removed returns the ranges covered by r but not by next, i.e the indexes which fall out of
// the window when moving from r to next.
// The cost depends on the number of ranges, not on how many indexes they cover.
func (r SliceRanges) Removed(next SliceRanges) SliceRanges {
	keep := next.normalise()
	var removed SliceRanges
	for _, sr := range r.normalise() {
		start := sr[0]
		for _, k := range keep {
			if k[1] < start {
				continue
			}
			if k[0] > sr[1] {
				break
			}
			if k[0] > start {
				removed = append(removed, [2]int64{start, k[0] - 1})
			}
			start = k[1] + 1
			if start > sr[1] {
				break
			}
		}
		if start <= sr[1] {
			removed = append(removed, [2]int64{start, sr[1]})
		}
	}
	return removed
}

// normalise sorts and merges overlapping or adjacent ranges.
func (r SliceRanges) normalise() SliceRanges {
	if len(r) == 0 {
		return nil
	}
	sorted := make(SliceRanges, len(r))
	copy(sorted, r)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i][0] < sorted[j][0]
	})
	merged := SliceRanges{sorted[0]}
	for _, sr := range sorted[1:] {
		last := &merged[len(merged)-1]
		if sr[0] <= last[1]+1 {
			if sr[1] > last[1] {
				last[1] = sr[1]
			}
			continue
		}
		merged = append(merged, sr)
	}
	return merged
}
