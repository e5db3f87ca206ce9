package cogj

// Span is the part of one chunk that a page takes.
type Span struct {
	Position int    // index into the pruned chunk list
	Skip     uint64 // features skipped at the front of the chunk
	Take     uint64 // features taken after the skip
}

// Page maps a [start, start+count) feature window onto pruned chunks.
type Page struct {
	Spans           []Span
	TotalMatched    uint64
	Returned        uint64
	HasNextPage     bool
	HasPreviousPage bool
}

// Paginate plans the page [start, start+count) over chunks holding counts
// features each, in order. Chunks ending at or before start are never part
// of the plan. A start at or beyond the total is a *RangeError, except for
// the first page of an empty match.
func Paginate(counts []uint32, start, count uint64) (Page, error) {
	var total uint64
	for _, c := range counts {
		total += uint64(c)
	}
	page := Page{TotalMatched: total, HasPreviousPage: start > 0}
	if start >= total {
		if start == 0 {
			return page, nil
		}
		return Page{}, &RangeError{Start: start, Total: total}
	}

	var before uint64 // features in chunks preceding i
	for i, c := range counts {
		n := uint64(c)
		if page.Returned == count {
			break
		}
		if n == 0 {
			continue
		}
		if before+n <= start {
			before += n
			continue
		}
		var skip uint64
		if start > before {
			skip = start - before
		}
		take := min(n-skip, count-page.Returned)
		page.Spans = append(page.Spans, Span{Position: i, Skip: skip, Take: take})
		page.Returned += take
		before += n
	}
	page.HasNextPage = start+page.Returned < total
	return page, nil
}
