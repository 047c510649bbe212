package domain

import (
	"time"

	dErrors "kindergarten/pkg/domain-errors"
)

// Role is the closed set of account kinds. Behaviour dispatches on Role
// rather than on distinct person types.
type Role string

const (
	RoleParent              Role = "parent"
	RoleStaff               Role = "staff"
	RoleDirector            Role = "director"
	RoleSystemAdministrator Role = "system_administrator"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleParent, RoleStaff, RoleDirector, RoleSystemAdministrator:
		return r, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "unknown role "+s)
	}
}

// CanManageGardens reports whether the role may approve enrollments and
// operate registration windows.
func (r Role) CanManageGardens() bool {
	return r == RoleDirector || r == RoleSystemAdministrator
}

// CanWriteNotes reports whether the role may annotate children.
func (r Role) CanWriteNotes() bool {
	return r == RoleStaff || r == RoleDirector
}

// Profile is the field set every account shares.
type Profile struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	PasswordHash string `json:"password"`
}

// StaffDetails is the payload of staff and director accounts.
type StaffDetails struct {
	GardenName string    `json:"gardenName"`
	StartDate  time.Time `json:"startDate"`
	Classes    []string  `json:"classes"`
}

// DirectorDetails lists the kindergarten ids a director manages.
type DirectorDetails struct {
	Kindergartens []string `json:"kindergartens"`
}

// Person is a staff, director, or administrator account. Role selects which
// payload is meaningful; directors carry both staff and director details.
type Person struct {
	Profile
	Role     Role             `json:"role"`
	Staff    *StaffDetails    `json:"staff,omitempty"`
	Director *DirectorDetails `json:"director,omitempty"`

	Version int64 `json:"-"`
}

// Validate checks that the payload matches the role.
func (p *Person) Validate() error {
	if p.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	switch p.Role {
	case RoleStaff:
		if p.Staff == nil {
			return dErrors.New(dErrors.CodeValidation, "staff details are required")
		}
	case RoleDirector:
		if p.Staff == nil {
			p.Staff = &StaffDetails{}
		}
		if p.Director == nil {
			p.Director = &DirectorDetails{Kindergartens: []string{}}
		}
	case RoleSystemAdministrator:
		p.Staff = nil
		p.Director = nil
	default:
		return dErrors.New(dErrors.CodeValidation, "person role must be staff, director, or system_administrator")
	}
	return nil
}
