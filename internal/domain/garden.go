package domain

import (
	"time"

	dErrors "kindergarten/pkg/domain-errors"
)

// RegistrationWindowDays is how long a registration window stays open. The
// expiry is calendar-day arithmetic on the start timestamp, not a fixed 72h.
const RegistrationWindowDays = 3

// Garden is a kindergarten document.
//
// Invariants:
//   - every key of Children belongs to a child whose GartenName equals Name
//   - IsRegistered implies RegistrationStartDate is set and not expired
//   - window transitions are CLOSED -> OPEN -> CLOSED only
//   - Status is free text set by a director, unrelated to the window
type Garden struct {
	ID                        string                 `json:"id"`
	Name                      string                 `json:"name"`
	Address                   string                 `json:"address"`
	City                      string                 `json:"city"`
	PhoneNumber               string                 `json:"phoneNumber"`
	OpenTime                  string                 `json:"openTime"`
	CloseTime                 string                 `json:"closeTime"`
	OrganizationalAffiliation string                 `json:"organizationalAffiliation"`
	ImageURL                  string                 `json:"imageUrl"`
	DirectorEmail             string                 `json:"directorEmail,omitempty"`
	Classes                   []GardenClass          `json:"classes"`
	Children                  map[string]ChildStatus `json:"children"`
	Reviews                   []Review               `json:"reviews"`
	IsRegistered              bool                   `json:"isRegistered"`
	RegistrationStartDate     *time.Time             `json:"registrationStartDate"`
	Status                    *string                `json:"status"`

	// Version is the store etag the garden was read at.
	Version int64 `json:"-"`
}

// Normalize replaces nil collections with empty ones.
func (g *Garden) Normalize() {
	if g.Classes == nil {
		g.Classes = []GardenClass{}
	}
	for i := range g.Classes {
		if g.Classes[i].Children == nil {
			g.Classes[i].Children = map[string]ChildStatus{}
		}
	}
	if g.Children == nil {
		g.Children = map[string]ChildStatus{}
	}
	if g.Reviews == nil {
		g.Reviews = []Review{}
	}
}

// ClassIndex returns the position of the class with courseNumber, or -1.
func (g *Garden) ClassIndex(courseNumber string) int {
	for i, c := range g.Classes {
		if c.CourseNumber == courseNumber {
			return i
		}
	}
	return -1
}

// WindowExpiry is the instant after which an open window must close.
func (g *Garden) WindowExpiry() (time.Time, bool) {
	if g.RegistrationStartDate == nil {
		return time.Time{}, false
	}
	return g.RegistrationStartDate.AddDate(0, 0, RegistrationWindowDays), true
}

// WindowExpired reports whether an open window is past its expiry at now.
// A window opened without a start date is treated as expired.
func (g *Garden) WindowExpired(now time.Time) bool {
	if !g.IsRegistered {
		return false
	}
	expiry, ok := g.WindowExpiry()
	if !ok {
		return true
	}
	return now.After(expiry)
}

// CanOpen checks the CLOSED -> OPEN transition.
func (g *Garden) CanOpen() error {
	if g.IsRegistered {
		return dErrors.New(dErrors.CodeValidation, "registration window is already open")
	}
	return nil
}

// ApplyOpen opens the window at now. Call CanOpen first.
func (g *Garden) ApplyOpen(now time.Time) {
	start := now
	g.IsRegistered = true
	g.RegistrationStartDate = &start
}

// ApplyClose closes the window, keeping the start date as history.
func (g *Garden) ApplyClose() {
	g.IsRegistered = false
}

// AverageRating is the mean review rating scaled by ten, or 0 without reviews.
func (g *Garden) AverageRating() float64 {
	if len(g.Reviews) == 0 {
		return 0
	}
	sum := 0
	for _, r := range g.Reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(len(g.Reviews)) * 10
}

// GardenClass is an age- and capacity-bounded class inside a kindergarten.
type GardenClass struct {
	ID           string                 `json:"id"`
	CourseNumber string                 `json:"courseNumber"`
	CourseType   string                 `json:"courseType"`
	MaxChildren  int                    `json:"maxChildren"`
	MinAge       int                    `json:"minAge"`
	MaxAge       int                    `json:"maxAge"`
	Children     map[string]ChildStatus `json:"children"`
}

// AcceptsAge reports whether age lies in [MinAge, MaxAge].
func (c GardenClass) AcceptsAge(age int) bool {
	return age >= c.MinAge && age <= c.MaxAge
}

// Full reports whether the class is at capacity. MaxChildren of 0 means
// unbounded.
func (c GardenClass) Full() bool {
	return c.MaxChildren > 0 && len(c.Children) >= c.MaxChildren
}

// Validate checks a class definition.
func (c GardenClass) Validate() error {
	if c.CourseNumber == "" {
		return dErrors.New(dErrors.CodeValidation, "courseNumber is required")
	}
	if c.MinAge < 0 || c.MaxAge < c.MinAge {
		return dErrors.New(dErrors.CodeValidation, "age range is invalid")
	}
	if c.MaxChildren < 0 {
		return dErrors.New(dErrors.CodeValidation, "maxChildren must not be negative")
	}
	return nil
}

// Review is a parent's rating of a kindergarten, stored in both the garden
// and the parent document.
type Review struct {
	ParentEmail     string    `json:"parentEmail"`
	Rating          int       `json:"rating"`
	Comment         string    `json:"comment"`
	ManagerResponse string    `json:"managerResponse,omitempty"`
	ReviewDate      time.Time `json:"reviewDate"`
}

// MinReviewRating and MaxReviewRating bound Review.Rating.
const (
	MinReviewRating = 1
	MaxReviewRating = 10
)

// Validate checks a review before it is stored.
func (r Review) Validate() error {
	if r.Rating < MinReviewRating || r.Rating > MaxReviewRating {
		return dErrors.New(dErrors.CodeValidation, "rating must be between 1 and 10")
	}
	return nil
}

// SameReview reports whether r identifies the same submission as other.
func (r Review) SameReview(parentEmail string, reviewDate time.Time) bool {
	return r.ParentEmail == parentEmail && r.ReviewDate.Equal(reviewDate)
}
