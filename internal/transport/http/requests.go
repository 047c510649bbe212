package httptransport

import (
	"strings"
	"time"

	"kindergarten/internal/domain"
	dErrors "kindergarten/pkg/domain-errors"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	if r.Email == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "email and password are required")
	}
	return nil
}

// SignUpRequest is the body of POST /parents.
type SignUpRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (r *SignUpRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	return nil
}

// RegisterChildRequest is the body of POST /gardens/{garden}/children. The
// id is optional; hobbies are the class course numbers.
type RegisterChildRequest struct {
	ID       string   `json:"id"`
	FullName string   `json:"fullName"`
	Age      int      `json:"age"`
	Hobbies  []string `json:"hobbies"`
}

func (r *RegisterChildRequest) Validate() error {
	if len(r.ID) > 64 {
		return dErrors.New(dErrors.CodeValidation, "id must be at most 64 characters")
	}
	if strings.TrimSpace(r.FullName) == "" {
		return dErrors.New(dErrors.CodeValidation, "fullName is required")
	}
	return nil
}

// ApprovalRequest is the body of PUT .../approval.
type ApprovalRequest struct {
	Approved *bool `json:"approved"`
}

func (r *ApprovalRequest) Validate() error {
	if r.Approved == nil {
		return dErrors.New(dErrors.CodeValidation, "approved is required")
	}
	return nil
}

// StatusRequest is the body of PUT /gardens/{garden}/status.
type StatusRequest struct {
	Status string `json:"status"`
}

// NoteRequest is one note of POST /children/{child}/notes. When courseType
// is empty it is resolved from gardenName and courseNumber.
type NoteRequest struct {
	Note         string `json:"note"`
	CourseType   string `json:"courseType"`
	CourseNumber string `json:"courseNumber"`
	Rating       *int   `json:"rating"`
}

// NotesRequest is the body of POST /children/{child}/notes.
type NotesRequest struct {
	GardenName string        `json:"gardenName"`
	Notes      []NoteRequest `json:"notes"`
}

func (r *NotesRequest) Validate() error {
	if len(r.Notes) == 0 {
		return dErrors.New(dErrors.CodeValidation, "notes are required")
	}
	for _, n := range r.Notes {
		if n.CourseType == "" && n.CourseNumber != "" && strings.TrimSpace(r.GardenName) == "" {
			return dErrors.New(dErrors.CodeValidation, "gardenName is required to resolve a courseNumber")
		}
	}
	return nil
}

// ReviewRequest is the body of POST /gardens/{garden}/reviews.
type ReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (r *ReviewRequest) Validate() error {
	if len(r.Comment) > 2000 {
		return dErrors.New(dErrors.CodeValidation, "comment must be at most 2000 characters")
	}
	return nil
}

// ReviewResponseRequest is the body of POST .../reviews/response.
type ReviewResponseRequest struct {
	ParentEmail string    `json:"parentEmail"`
	ReviewDate  time.Time `json:"reviewDate"`
	Response    string    `json:"response"`
}

func (r *ReviewResponseRequest) Validate() error {
	if strings.TrimSpace(r.ParentEmail) == "" || r.ReviewDate.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "parentEmail and reviewDate are required")
	}
	return nil
}

// ClassRequest describes a class in create and update calls.
type ClassRequest struct {
	CourseNumber string `json:"courseNumber"`
	CourseType   string `json:"courseType"`
	MaxChildren  int    `json:"maxChildren"`
	MinAge       int    `json:"minAge"`
	MaxAge       int    `json:"maxAge"`
}

func (r ClassRequest) toDomain() domain.GardenClass {
	return domain.GardenClass{
		CourseNumber: strings.TrimSpace(r.CourseNumber),
		CourseType:   strings.TrimSpace(r.CourseType),
		MaxChildren:  r.MaxChildren,
		MinAge:       r.MinAge,
		MaxAge:       r.MaxAge,
	}
}

// CreateGardenRequest is the body of POST /gardens.
type CreateGardenRequest struct {
	Name                      string         `json:"name"`
	Address                   string         `json:"address"`
	City                      string         `json:"city"`
	PhoneNumber               string         `json:"phoneNumber"`
	OpenTime                  string         `json:"openTime"`
	CloseTime                 string         `json:"closeTime"`
	OrganizationalAffiliation string         `json:"organizationalAffiliation"`
	ImageURL                  string         `json:"imageUrl"`
	DirectorEmail             string         `json:"directorEmail"`
	Classes                   []ClassRequest `json:"classes"`
}

func (r *CreateGardenRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

func (r *CreateGardenRequest) toDomain() domain.Garden {
	g := domain.Garden{
		Name:                      r.Name,
		Address:                   strings.TrimSpace(r.Address),
		City:                      strings.TrimSpace(r.City),
		PhoneNumber:               strings.TrimSpace(r.PhoneNumber),
		OpenTime:                  strings.TrimSpace(r.OpenTime),
		CloseTime:                 strings.TrimSpace(r.CloseTime),
		OrganizationalAffiliation: strings.TrimSpace(r.OrganizationalAffiliation),
		ImageURL:                  strings.TrimSpace(r.ImageURL),
		DirectorEmail:             r.DirectorEmail,
	}
	for _, c := range r.Classes {
		g.Classes = append(g.Classes, c.toDomain())
	}
	return g
}

// StaffRequest is the body of POST /staff.
type StaffRequest struct {
	Email      string   `json:"email"`
	Name       string   `json:"name"`
	Password   string   `json:"password"`
	Role       string   `json:"role"`
	GardenName string   `json:"gardenName"`
	Classes    []string `json:"classes"`
}

func (r *StaffRequest) Validate() error {
	if _, err := domain.ParseRole(r.Role); err != nil {
		return err
	}
	return nil
}

// AdministratorRequest is the body of POST /admin/administrators.
type AdministratorRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// AssignmentRequest is the body of PUT /staff/{email}/assignment.
type AssignmentRequest struct {
	GardenName string   `json:"gardenName"`
	Classes    []string `json:"classes"`
}

func (r *AssignmentRequest) Validate() error {
	if strings.TrimSpace(r.GardenName) == "" {
		return dErrors.New(dErrors.CodeValidation, "gardenName is required")
	}
	return nil
}

// PhotoRequest is the body of POST /photos.
type PhotoRequest struct {
	ImageURL  string    `json:"imageUrl"`
	ClassName string    `json:"className"`
	ChildID   string    `json:"childId"`
	Time      time.Time `json:"time"`
}

// AffiliationRequest is the body of POST /admin/affiliations.
type AffiliationRequest struct {
	Name string `json:"name"`
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}
