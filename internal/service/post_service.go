package service

import (
	"context"
	"strings"

	"github.com/iliyamo/donation-market/internal/model"
	"github.com/iliyamo/donation-market/internal/policy"
	"github.com/iliyamo/donation-market/internal/repository"
)

// PostService validates and stores posts.
type PostService struct {
	posts      *repository.PostRepo
	categories *repository.CategoryRepo
	addresses  *repository.AddressRepo
}

func NewPostService(posts *repository.PostRepo, categories *repository.CategoryRepo, addresses *repository.AddressRepo) *PostService {
	return &PostService{posts: posts, categories: categories, addresses: addresses}
}

// PostInput carries the fields of a new post.
type PostInput struct {
	Title          string
	Description    string
	NumberOfPlaces int
	Status         string
	Street         string
	StreetNumber   string
	City           string
	PostalCode     string
	Categories     []uint64
	Photo          *string
}

// PostUpdate is a partial update.  City and PostalCode move the post to
// another address; when only one is given the other keeps its current value.
type PostUpdate struct {
	Title          *string
	Description    *string
	NumberOfPlaces *int
	Status         *string
	Street         *string
	StreetNumber   *string
	City           *string
	PostalCode     *string
	Categories     *[]uint64
	Photo          *string
}

// Create publishes a post owned by the actor.
func (s *PostService) Create(ctx context.Context, actor policy.Actor, in PostInput) (*model.PostDetail, error) {
	if err := authorize(policy.Authenticated, actor, policy.Resource{}); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, invalid("title is required")
	}
	if in.NumberOfPlaces < 1 {
		return nil, invalid("number_of_places must be at least 1")
	}
	if in.Status == "" {
		in.Status = model.PostAvailable
	}
	if !model.IsValidPostStatus(in.Status) {
		return nil, invalid("post_status must be available or unavailable")
	}
	if len(in.Categories) == 0 {
		return nil, invalid("at least one category is required")
	}
	if err := s.categories.ExistAll(ctx, in.Categories); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.City) == "" || strings.TrimSpace(in.PostalCode) == "" {
		return nil, invalid("city and postal_code are required")
	}
	addressID, err := s.addresses.FindOrCreate(ctx, in.City, in.PostalCode)
	if err != nil {
		return nil, err
	}
	p := &model.Post{
		Title:          in.Title,
		Description:    in.Description,
		NumberOfPlaces: in.NumberOfPlaces,
		Status:         in.Status,
		Photo:          in.Photo,
		Street:         in.Street,
		StreetNumber:   in.StreetNumber,
		AddressID:      addressID,
		ClientID:       actor.ID,
	}
	if err := s.posts.Create(ctx, p, in.Categories); err != nil {
		return nil, err
	}
	return s.posts.GetDetail(ctx, p.ID)
}

// Update edits a post.  Only the owner or an administrator may.
func (s *PostService) Update(ctx context.Context, actor policy.Actor, id uint64, in PostUpdate) (*model.PostDetail, error) {
	current, err := s.posts.GetDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(policy.SelfOrAdmin, actor, policy.Owned(current.ClientID)); err != nil {
		return nil, err
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, invalid("title cannot be empty")
	}
	if in.NumberOfPlaces != nil && *in.NumberOfPlaces < 1 {
		return nil, invalid("number_of_places must be at least 1")
	}
	if in.Status != nil && !model.IsValidPostStatus(*in.Status) {
		return nil, invalid("post_status must be available or unavailable")
	}
	if in.Categories != nil {
		if len(*in.Categories) == 0 {
			return nil, invalid("at least one category is required")
		}
		if err := s.categories.ExistAll(ctx, *in.Categories); err != nil {
			return nil, err
		}
	}

	patch := repository.PostPatch{
		Title:          in.Title,
		Description:    in.Description,
		NumberOfPlaces: in.NumberOfPlaces,
		Status:         in.Status,
		Photo:          in.Photo,
		Street:         in.Street,
		StreetNumber:   in.StreetNumber,
	}
	if in.City != nil || in.PostalCode != nil {
		city, postal := current.City, current.PostalCode
		if in.City != nil {
			city = *in.City
		}
		if in.PostalCode != nil {
			postal = *in.PostalCode
		}
		addressID, err := s.addresses.FindOrCreate(ctx, city, postal)
		if err != nil {
			return nil, err
		}
		patch.AddressID = &addressID
	}
	if err := s.posts.Update(ctx, id, patch, in.Categories); err != nil {
		return nil, err
	}
	return s.posts.GetDetail(ctx, id)
}

// Delete removes a post with its reservations and comments.
func (s *PostService) Delete(ctx context.Context, actor policy.Actor, id uint64) error {
	owner, err := s.posts.OwnerID(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(policy.SelfOrAdmin, actor, policy.Owned(owner)); err != nil {
		return err
	}
	return s.posts.Delete(ctx, id)
}

func (s *PostService) Get(ctx context.Context, id uint64) (*model.PostDetail, error) {
	return s.posts.GetDetail(ctx, id)
}

// Search lists posts matching f, newest first.
func (s *PostService) Search(ctx context.Context, f repository.PostFilter, pg repository.Page) (repository.Result[model.PostDetail], error) {
	if f.Status != "" && !model.IsValidPostStatus(f.Status) {
		return repository.Result[model.PostDetail]{}, invalid("unknown status %q", f.Status)
	}
	return s.posts.Search(ctx, f, pg)
}

// ByCategory lists the posts tagged with categoryID.
func (s *PostService) ByCategory(ctx context.Context, categoryID uint64, f repository.PostFilter, pg repository.Page) (repository.Result[model.PostDetail], error) {
	if _, err := s.categories.GetByID(ctx, categoryID); err != nil {
		return repository.Result[model.PostDetail]{}, err
	}
	f.CategoryID = categoryID
	return s.Search(ctx, f, pg)
}
