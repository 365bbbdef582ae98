package main

import (
	"context"
	"errors"
	"fmt"
)

type Photo struct {
	ID              int64  `json:"id"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Photographer    string `json:"photographer"`
	PhotographerURL string `json:"photographerUrl"`
	Original        string `json:"original"`
	Thumb           string `json:"thumb"`
}

// QueryPageResult is one page of a search, in the order the provider returned it.
type QueryPageResult struct {
	Photos       []Photo
	TotalResults int
}

type PhotoSearcher interface {
	Search(ctx context.Context, query string, page int, pageSize int) (QueryPageResult, error)
	Type() string
}

// TransportError is returned by searchers when the provider could not be reached
// (Status == 0) or answered with a non-2xx status.
type TransportError struct {
	Provider string
	Status   int
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: network error: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: server responded %d: %v", e.Provider, e.Status, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func IsNetworkError(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Status == 0
}

func IsServerError(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Status != 0
}
