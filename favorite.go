package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// FavoriteStore persists the favorite flag of a photo by id.
type FavoriteStore interface {
	IsFavorite(ctx context.Context, photoId int64) (bool, error)
	SetFavorite(ctx context.Context, photoId int64, favorite bool) error
}

var ErrInvalidPhotoID = errors.New("invalid photo id")

func ParsePhotoID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPhotoID, s)
	}
	return id, nil
}

// ToggleFavorite flips the stored flag for photoId. The message is meant to be
// shown to the user whether or not the update succeeded.
func ToggleFavorite(ctx context.Context, store FavoriteStore, photoId int64) (favorite bool, message string, err error) {
	current, err := store.IsFavorite(ctx, photoId)
	if err != nil {
		return false, "Failed to update favorite status: " + err.Error(), err
	}
	favorite = !current
	if err := store.SetFavorite(ctx, photoId, favorite); err != nil {
		return current, "Failed to update favorite status: " + err.Error(), err
	}
	if favorite {
		return true, "Added to favorites", nil
	}
	return false, "Removed from favorites", nil
}
