package main

type EmptyStateKind string

const (
	EmptyInitial      EmptyStateKind = "initial"
	EmptyQueryChanged EmptyStateKind = "queryChanged"
	EmptyError        EmptyStateKind = "error"
)

// EmptyState tells the presentation what to show while the photo list is empty.
type EmptyState struct {
	Kind      EmptyStateKind `json:"kind"`
	Text      string         `json:"text"`
	Animation string         `json:"animation"`
}

const emptyAnimation = "empty_lottie"

var (
	initialEmptyState = EmptyState{
		Kind:      EmptyInitial,
		Text:      "Try to search something. The results will be very appealing!",
		Animation: emptyAnimation,
	}
	queryChangedEmptyState = EmptyState{
		Kind:      EmptyQueryChanged,
		Text:      "Loading your new keyword. The results will be very appealing!",
		Animation: emptyAnimation,
	}
	errorEmptyState = EmptyState{
		Kind:      EmptyError,
		Text:      "Something went wrong while we trying to get the photos. Please try it again : )",
		Animation: emptyAnimation,
	}
)
