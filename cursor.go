package main

import "slices"

const unknownTotal = -1

// queryCursor is the pagination progress of a single search keyword.
type queryCursor struct {
	query  string
	page   int
	total  int
	photos []Photo
}

func newQueryCursor() queryCursor {
	return queryCursor{page: 1, total: unknownTotal, photos: []Photo{}}
}

// resetForQuery returns the cursor to use for query. When query differs from
// the cursor's keyword a fresh cursor is returned and changed is true.
func resetForQuery(c queryCursor, query string) (next queryCursor, changed bool) {
	if c.query == query {
		return c, false
	}
	next = newQueryCursor()
	next.query = query
	return next, true
}

func (c queryCursor) exhausted() bool {
	return c.total != unknownTotal && len(c.photos) >= c.total
}

// advance records a successful page. The photo slice is always reallocated so
// snapshots already handed to observers are never mutated.
func (c queryCursor) advance(res QueryPageResult) queryCursor {
	c.page++
	c.total = res.TotalResults
	c.photos = append(slices.Clip(c.photos), res.Photos...)
	return c
}
