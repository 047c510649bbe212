package httptransport

import (
	"context"
	"time"

	"kindergarten/internal/domain"
	"kindergarten/internal/enrollment"
	"kindergarten/internal/garden"
	"kindergarten/internal/notes"
	"kindergarten/internal/people"
	"kindergarten/internal/rating"
	"kindergarten/internal/window"
)

// EnrollmentService registers and removes children.
type EnrollmentService interface {
	RegisterChild(ctx context.Context, child domain.Child, parentID string) (string, error)
	RemoveChild(ctx context.Context, childID, gardenName, parentID string) error
	ResumeRegistration(ctx context.Context, sagaID string) error
	ResumeRemoval(ctx context.Context, sagaID string) error
	Sagas(ctx context.Context, operation string) ([]*enrollment.Saga, error)
}

// ApprovalService reads and writes enrollment approval.
type ApprovalService interface {
	SetApproval(ctx context.Context, gardenName, childID string, approved bool) error
	IsChildApproved(ctx context.Context, gardenName, childID string) (bool, error)
	ApprovedChildren(ctx context.Context, gardenName string) ([]domain.Child, error)
	PendingChildren(ctx context.Context, gardenName string) ([]domain.Child, error)
	ClassRoster(ctx context.Context, gardenName, courseNumber string) ([]domain.ChildStatus, error)
}

// WindowService operates registration windows.
type WindowService interface {
	Get(ctx context.Context, gardenName string) (window.State, error)
	OpenRegistration(ctx context.Context, gardenName string) error
	CloseRegistration(ctx context.Context, gardenName string) error
	SetStatus(ctx context.Context, gardenName, status string) error
	OpenAll(ctx context.Context) (window.SweepResult, error)
	CloseAll(ctx context.Context) (window.SweepResult, error)
	Sweep(ctx context.Context, now time.Time) (window.SweepResult, error)
}

// NotesService merges and reads staff notes.
type NotesService interface {
	MergeNotes(ctx context.Context, childID string, incoming []domain.Note) error
	NotesForParent(ctx context.Context, email string) (notes.ParentNotes, error)
	CourseTypeFor(ctx context.Context, gardenName, courseNumber string) (string, error)
}

// RatingService ranks kindergartens and stores reviews.
type RatingService interface {
	TopRatedGardens(ctx context.Context, n int) ([]rating.RankedGarden, error)
	GardensInRatingRange(ctx context.Context, minRating, maxRating float64) ([]rating.RankedGarden, error)
	AddReview(ctx context.Context, gardenName, parentEmail string, review domain.Review) error
	RespondToReview(ctx context.Context, gardenName, parentEmail string, reviewDate time.Time, response string) error
	ReviewsForGarden(ctx context.Context, gardenName string) ([]domain.Review, error)
	ReviewsForParent(ctx context.Context, email string) ([]domain.Review, error)
}

// GardenService manages the kindergarten catalog.
type GardenService interface {
	CreateGarden(ctx context.Context, g domain.Garden) (*domain.Garden, error)
	GetByName(ctx context.Context, name string) (*domain.Garden, error)
	GardensForParent(ctx context.Context, parentEmail string) ([]*domain.Garden, error)
	DirectorGardens(ctx context.Context, directorEmail string) ([]*domain.Garden, error)
	Manages(ctx context.Context, directorEmail, gardenName string) (bool, error)
	ChildClasses(ctx context.Context, gardenName, childID string) ([]domain.GardenClass, error)
	UpdateDetails(ctx context.Context, name string, d garden.Details) (*domain.Garden, error)
	DeleteGarden(ctx context.Context, name string) error
	AddClass(ctx context.Context, gardenName string, class domain.GardenClass) (*domain.GardenClass, error)
	UpdateClass(ctx context.Context, gardenName, courseNumber string, class domain.GardenClass) (*domain.GardenClass, error)
	RemoveClass(ctx context.Context, gardenName, courseNumber string) error
	Search(ctx context.Context, q garden.Query) ([]*domain.Garden, error)
	AddAffiliation(ctx context.Context, name string) error
	ListAffiliations(ctx context.Context) ([]string, error)
}

// PeopleService manages accounts.
type PeopleService interface {
	SignUpParent(ctx context.Context, req people.SignUp) (*domain.Parent, error)
	CreateStaff(ctx context.Context, req people.NewStaff) (*domain.Person, error)
	CreateAdministrator(ctx context.Context, email, name, password string) (*domain.Person, error)
	FindParent(ctx context.Context, email string) (*domain.Parent, error)
	FindStaff(ctx context.Context, email string) (*domain.Person, error)
	ListStaff(ctx context.Context, q people.StaffQuery) ([]*domain.Person, error)
	UserType(ctx context.Context, email string) (domain.Role, error)
	Authenticate(ctx context.Context, email, password string) (people.Account, error)
	AssignStaffToGarden(ctx context.Context, email, gardenName string, classes []string) error
}

// PhotoService stores child photo metadata.
type PhotoService interface {
	Save(ctx context.Context, photo domain.ChildPhoto) (*domain.ChildPhoto, error)
	ForChildren(ctx context.Context, childIDs []string) ([]*domain.ChildPhoto, error)
	ForParentInGarden(ctx context.Context, parentEmail, gardenName string) ([]*domain.ChildPhoto, error)
}

// TokenIssuer signs access tokens after a successful login.
type TokenIssuer interface {
	GenerateAccessToken(email, role string, expiresIn time.Duration) (string, error)
}

// LoginLimiter throttles failed logins per account and client address.
// Check returns a *ratelimit.LockedError while the pair is locked out.
type LoginLimiter interface {
	Check(ctx context.Context, email, ip string) error
	RecordFailure(ctx context.Context, email, ip string)
	Clear(ctx context.Context, email, ip string)
}
