// Package photos stores child photo metadata. The image bytes are hosted
// elsewhere; only the URL is kept.
package photos

import (
	"context"
	"slices"
	"strings"

	"kindergarten/internal/docstore"
	"kindergarten/internal/domain"
	"kindergarten/internal/store"
	dErrors "kindergarten/pkg/domain-errors"
	"kindergarten/pkg/requestcontext"
)

var pathChildID = docstore.P("childId")

type Service struct {
	photos   *store.Photos
	parents  *store.Parents
	children *store.Children
}

func New(ds docstore.Store) *Service {
	return &Service{
		photos:   store.NewPhotos(ds),
		parents:  store.NewParents(ds),
		children: store.NewChildren(ds),
	}
}

// Save records photo metadata for an existing child.
func (s *Service) Save(ctx context.Context, photo domain.ChildPhoto) (*domain.ChildPhoto, error) {
	photo.ImageURL = strings.TrimSpace(photo.ImageURL)
	photo.ChildID = strings.TrimSpace(photo.ChildID)
	if photo.ImageURL == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "imageUrl is required")
	}
	if photo.ChildID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "childId is required")
	}
	if photo.Time.IsZero() {
		photo.Time = requestcontext.Now(ctx)
	}
	children, _, err := s.children.ByChildID(ctx, photo.ChildID)
	if err != nil {
		return nil, store.Translate(err, "child")
	}
	if len(children) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "child not found")
	}
	if _, err := s.photos.Create(ctx, "", &photo); err != nil {
		return nil, store.Translate(err, "photo")
	}
	return &photo, nil
}

// ForChildren returns the photos of every child in childIDs, newest first.
func (s *Service) ForChildren(ctx context.Context, childIDs []string) ([]*domain.ChildPhoto, error) {
	out := []*domain.ChildPhoto{}
	for _, id := range childIDs {
		photos, err := s.photos.Find(ctx, docstore.Eq(pathChildID, id))
		if err != nil {
			return nil, store.Translate(err, "photos")
		}
		out = append(out, photos...)
	}
	slices.SortStableFunc(out, func(a, b *domain.ChildPhoto) int {
		return b.Time.Compare(a.Time)
	})
	return out, nil
}

// ForParentInGarden returns the photos of the parent's children enrolled in
// gardenName.
func (s *Service) ForParentInGarden(ctx context.Context, parentEmail, gardenName string) ([]*domain.ChildPhoto, error) {
	parent, err := s.parents.ByEmail(ctx, parentEmail)
	if err != nil {
		return nil, store.Translate(err, "parent")
	}
	var ids []string
	for _, c := range parent.Children {
		if c.GartenName == gardenName {
			ids = append(ids, c.ID)
		}
	}
	return s.ForChildren(ctx, ids)
}
