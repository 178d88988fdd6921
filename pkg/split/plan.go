package split

// fits reports whether an entry of size joins a split already holding running
// bytes. The comparison is strict: a split is full as soon as the next entry
// would reach the limit.
func fits(running, size, limit int64) bool {
	return running+size < limit
}

// tooLarge reports whether no split can ever hold an entry of size.
func tooLarge(size, limit int64) bool {
	return size >= limit
}

// PlannedSplit is one split boundary computed by Plan.
type PlannedSplit struct {
	Index int
	// First is the position of the split's first entry in the input sequence.
	First int
	// Count is the number of entries in the split.
	Count int
	// Size is the split's running size after its last entry.
	Size int64
}

// Plan classifies a sequence of entry sizes into splits without writing
// anything. It applies the same rules as Controller.Accept, so replaying the
// sizes of a run reproduces its boundaries. names is optional and only used
// to label an EntryTooLargeError.
func Plan(sizes []int64, names []string, limit int64) ([]PlannedSplit, error) {
	if limit <= 0 {
		return nil, &ConfigError{Field: "split size", Reason: "must be a positive number of bytes"}
	}

	splits := []PlannedSplit{{Index: 0}}
	for i, size := range sizes {
		if tooLarge(size, limit) {
			name := ""
			if i < len(names) {
				name = names[i]
			}
			return splits, &EntryTooLargeError{Name: name, Size: size, Limit: limit}
		}

		cur := &splits[len(splits)-1]
		if !fits(cur.Size, size, limit) {
			splits = append(splits, PlannedSplit{Index: cur.Index + 1, First: i})
			cur = &splits[len(splits)-1]
		}
		cur.Count++
		cur.Size += size
	}
	return splits, nil
}
