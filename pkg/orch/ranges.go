package orch

import (
	"fmt"
	"strconv"
	"strings"
)

// maxBitmapIDs is the widest id set the bitmap helpers can carry.
const maxBitmapIDs = 64

// ParseIndexRange parses a compact id-range specifier: a bare id
// ("7") or a low-high pair ("2-4"). Valid only when low <= high.
func ParseIndexRange(input string) (low, high uint32, ok bool) {
	parts := strings.Split(input, RangeSpecifier)
	switch len(parts) {
	case 1:
		v, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return 0, 0, false
		}
		return uint32(v), uint32(v), true
	case 2:
		lo, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return 0, 0, false
		}
		hi, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return 0, 0, false
		}
		if lo > hi {
			return 0, 0, false
		}
		return uint32(lo), uint32(hi), true
	default:
		return 0, 0, false
	}
}

// GenerateBitmapFromIDsStr expands a comma-separated id list with
// range specifiers ("2-4,7") into a bitmap.
func GenerateBitmapFromIDsStr(ids string) (uint64, error) {
	var bitmap uint64
	for _, item := range strings.Split(ids, ListItemDelimiter) {
		low, high, ok := ParseIndexRange(item)
		if !ok {
			return 0, fmt.Errorf("invalid id range %q in %q", item, ids)
		}
		if high >= maxBitmapIDs {
			return 0, fmt.Errorf("id %d out of range [0, %d]", high, maxBitmapIDs-1)
		}
		for id := low; id <= high; id++ {
			bitmap |= 1 << id
		}
	}
	return bitmap, nil
}

// GenerateIDListFromMap returns the ids set in the bitmap, ascending,
// restricted to [0, maxID].
func GenerateIDListFromMap(bitmap uint64, maxID uint32) []uint32 {
	if maxID >= maxBitmapIDs {
		maxID = maxBitmapIDs - 1
	}
	var ids []uint32
	for id := uint32(0); id <= maxID; id++ {
		if bitmap&(1<<id) != 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// GenerateIDsStrFromMap renders the bitmap back to the canonical id
// list with contiguous-range compression, the inverse of
// GenerateBitmapFromIDsStr.
func GenerateIDsStrFromMap(bitmap uint64, maxID uint32) string {
	ids := GenerateIDListFromMap(bitmap, maxID)
	if len(ids) == 0 {
		return ""
	}
	var parts []string
	start := ids[0]
	prev := ids[0]
	flush := func(end uint32) {
		if start == end {
			parts = append(parts, strconv.FormatUint(uint64(start), 10))
		} else {
			parts = append(parts, fmt.Sprintf("%d%s%d", start, RangeSpecifier, end))
		}
	}
	for _, id := range ids[1:] {
		if id == prev+1 {
			prev = id
			continue
		}
		flush(prev)
		start, prev = id, id
	}
	flush(prev)
	return strings.Join(parts, ListItemDelimiter)
}

// IsItemIDsMapContinuous reports whether the set bits within
// [0, maxID] form one contiguous run.
func IsItemIDsMapContinuous(bitmap uint64, maxID uint32) bool {
	ids := GenerateIDListFromMap(bitmap, maxID)
	if len(ids) == 0 {
		return false
	}
	return ids[len(ids)-1]-ids[0] == uint32(len(ids)-1)
}
