// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package nvdstore

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/molecula/nvdstore/errors"
)

// Shard filenames carry a fixed-width bitmask describing which feed years a
// shard contains, so that scans can prune shards without opening them. The
// mask covers bitmaskSize candidate years in descending order, prefixed by
// two sentinel slots for the "recent" and "modified" feeds:
//
//	[recent, modified, 2033, 2032, ..., 2002]
//
// Years outside 2002..2033 cannot be represented and are silently dropped
// during encoding.

const (
	bitmaskSize = 32
	maskBits    = bitmaskSize + 2 // two sentinel slots

	firstMaskYear = 2002
	lastMaskYear  = firstMaskYear + bitmaskSize - 1

	// FeedRecent and FeedModified are the rolling NVD feed names that
	// occupy the sentinel mask slots alongside the yearly feeds.
	FeedRecent   = "recent"
	FeedModified = "modified"
)

var hexMaskPattern = regexp.MustCompile(`^0[xX][0-9a-fA-F]+$`)

// maskSlots returns the mask slot names, highest bit first.
func maskSlots() []string {
	slots := make([]string, 0, maskBits)
	slots = append(slots, FeedRecent, FeedModified)
	for year := lastMaskYear; year >= firstMaskYear; year-- {
		slots = append(slots, strconv.Itoa(year))
	}
	return slots
}

// EncodeYears encodes a set of feed years (and/or the recent/modified
// sentinels) into a hexadecimal bitmask string such as "0x10101".
func EncodeYears(years map[string]struct{}) string {
	var mask uint64
	for i, slot := range maskSlots() {
		if _, ok := years[slot]; ok {
			mask |= 1 << uint(maskBits-1-i)
		}
	}
	return fmt.Sprintf("0x%x", mask)
}

// DecodeYears decodes a hexadecimal bitmask back into the set of feed years
// it represents. It is the inverse of EncodeYears for any set drawn from the
// supported range.
func DecodeYears(mask string) (map[string]struct{}, error) {
	if !hexMaskPattern.MatchString(mask) {
		return nil, errors.Newf(errors.ErrFormat, "mask %q does not match hexadecimal pattern", mask)
	}

	bits, err := strconv.ParseUint(mask[2:], 16, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing mask %q", mask)
	}

	years := make(map[string]struct{})
	for i, slot := range maskSlots() {
		if bits&(1<<uint(maskBits-1-i)) != 0 {
			years[slot] = struct{}{}
		}
	}
	return years, nil
}

// YearSet builds the set form EncodeYears expects from plain values.
func YearSet(years ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(years))
	for _, y := range years {
		set[y] = struct{}{}
	}
	return set
}
