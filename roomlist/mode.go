package roomlist

import "github.com/matrix-org/sliding-sync-client/sync3"

// SyncMode controls which ranges a list requests. It is one of Selective, Growing or Paging.
type SyncMode interface {
	isSyncMode()
}

// Selective requests fixed ranges chosen by the application.
type Selective struct {
	Ranges sync3.SliceRanges
}

// Growing requests [0, n*BatchSize-1] on the nth request, until the window covers the list.
// MaxRooms caps the window; 0 means no cap.
type Growing struct {
	BatchSize int64
	MaxRooms  int64
}

// Paging requests [n*BatchSize, (n+1)*BatchSize-1] on the nth request, until every page has been
// seen. MaxRooms caps the window; 0 means no cap.
type Paging struct {
	BatchSize int64
	MaxRooms  int64
}

func (Selective) isSyncMode() {}
func (Growing) isSyncMode()   {}
func (Paging) isSyncMode()    {}

// limit returns the number of rooms the list wants in total, or -1 if it is not known yet.
func limit(count int, known bool, maxRooms int64) int64 {
	if !known {
		if maxRooms > 0 {
			return maxRooms
		}
		return -1
	}
	l := int64(count)
	if maxRooms > 0 && maxRooms < l {
		l = maxRooms
	}
	return l
}

// nextRange returns the window to request after prevEnd, the last index requested (-1 if
// nothing was). fullyLoaded lists request the whole list they want.
func nextRange(batch, prevEnd, lim int64, paging, fullyLoaded bool) [2]int64 {
	if batch < 1 {
		batch = 1
	}
	if fullyLoaded && lim > 0 {
		return [2]int64{0, lim - 1}
	}
	start := int64(0)
	if paging {
		start = prevEnd + 1
		if lim >= 0 && start >= lim {
			start = 0
		}
	}
	end := prevEnd + batch
	if paging {
		end = start + batch - 1
	}
	if lim >= 0 && end > lim-1 {
		end = lim - 1
	}
	if end < start {
		// nothing to fetch, keep asking for the first batch so new rooms show up
		return [2]int64{start, start + batch - 1}
	}
	return [2]int64{start, end}
}
