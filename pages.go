package main

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// PageWindow selects items [First:Last) of upstream page Page.
type PageWindow struct {
	Page  int
	First int
	Last  int
}

// UpstreamWindows maps page srcPage of size srcPageSize onto the pages of a
// provider that serves resPageSize items per page.
func UpstreamWindows(srcPage int, srcPageSize int, resPageSize int) []PageWindow {
	var startOffset = (srcPage - 1) * srcPageSize
	var endOffset = startOffset + srcPageSize
	var firstPage = 1 + (startOffset / resPageSize)
	var first = (firstPage - 1) * resPageSize
	var last = first + resPageSize
	windows := []PageWindow{{
		Page:  firstPage,
		First: startOffset - first,
		Last:  min(resPageSize, endOffset-first),
	}}
	for last < endOffset {
		remain := endOffset - (last / resPageSize * resPageSize)
		last += resPageSize
		windows = append(windows, PageWindow{
			Page:  last / resPageSize,
			First: 0,
			Last:  min(resPageSize, remain),
		})
	}
	return windows
}

func (p PageWindow) String() string {
	return fmt.Sprintf("#%d [%d:%d]", p.Page, p.First, p.Last)
}

// fetchWindows loads every upstream page covering srcPage concurrently and
// stitches the selected items back together in order. The total reported is
// the one from the first window.
func fetchWindows(ctx context.Context, srcPage int, srcPageSize int, resPageSize int,
	load func(ctx context.Context, page int) (QueryPageResult, error)) (QueryPageResult, error) {
	windows := UpstreamWindows(srcPage, srcPageSize, resPageSize)
	results := make([]QueryPageResult, len(windows))

	g, gctx := errgroup.WithContext(ctx)
	for i, w := range windows {
		g.Go(func() error {
			res, err := load(gctx, w.Page)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return QueryPageResult{}, err
	}

	out := QueryPageResult{Photos: []Photo{}, TotalResults: results[0].TotalResults}
	for i, w := range windows {
		photos := results[i].Photos
		first := min(len(photos), w.First)
		last := min(len(photos), w.Last)
		out.Photos = append(out.Photos, photos[first:last]...)
		// A short upstream page means there is nothing after it.
		if len(photos) < resPageSize {
			break
		}
	}
	return out, nil
}
