// Package people manages accounts: parents and the staff, director, and
// administrator persons. Each role lives in its own collection keyed by
// normalized email.
package people

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"kindergarten/internal/docstore"
	"kindergarten/internal/domain"
	"kindergarten/internal/platform/metrics"
	"kindergarten/internal/store"
	dErrors "kindergarten/pkg/domain-errors"
	"kindergarten/pkg/platform/sentinel"
	kgstrings "kindergarten/pkg/platform/strings"
	"kindergarten/pkg/requestcontext"
)

var (
	pathStaffGarden  = docstore.P("staff", "gardenName")
	pathStaffClasses = docstore.P("staff", "classes")
)

type Service struct {
	parents *store.Parents
	people  *store.People
	gardens *store.Gardens

	logger      *slog.Logger
	metrics     *metrics.Metrics
	maxAttempts int
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(ds docstore.Store, opts ...Option) *Service {
	s := &Service{
		parents:     store.NewParents(ds),
		people:      store.NewPeople(ds),
		gardens:     store.NewGardens(ds),
		logger:      slog.New(slog.DiscardHandler),
		maxAttempts: docstore.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Account is the identity a successful login resolves to.
type Account struct {
	Email string      `json:"email"`
	Name  string      `json:"name"`
	Role  domain.Role `json:"role"`
}

// SignUp is the parent self-registration form.
type SignUp struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// NewStaff describes a staff or director account.
type NewStaff struct {
	Email      string      `json:"email"`
	Name       string      `json:"name"`
	Password   string      `json:"password"`
	Role       domain.Role `json:"role"`
	GardenName string      `json:"gardenName"`
	Classes    []string    `json:"classes"`
}

// SignUpParent creates a parent account with no children.
func (s *Service) SignUpParent(ctx context.Context, req SignUp) (*domain.Parent, error) {
	email, name, err := s.checkNewAccount(ctx, req.Email, req.Name)
	if err != nil {
		return nil, err
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	parent := &domain.Parent{Email: email, Name: name, Password: hash}
	parent.Normalize()
	if _, err := s.parents.Create(ctx, email, parent); err != nil {
		return nil, store.Translate(err, "parent")
	}
	s.logger.InfoContext(ctx, "parent signed up",
		"email", email,
		"request_id", requestcontext.RequestID(ctx),
	)
	parent.Password = ""
	return parent, nil
}

// CreateStaff creates a staff or director account. A staff member must be
// placed in an existing kindergarten.
func (s *Service) CreateStaff(ctx context.Context, req NewStaff) (*domain.Person, error) {
	if req.Role != domain.RoleStaff && req.Role != domain.RoleDirector {
		return nil, dErrors.New(dErrors.CodeValidation, "role must be staff or director")
	}
	email, name, err := s.checkNewAccount(ctx, req.Email, req.Name)
	if err != nil {
		return nil, err
	}
	details := &domain.StaffDetails{
		GardenName: strings.TrimSpace(req.GardenName),
		StartDate:  requestcontext.Now(ctx),
		Classes:    kgstrings.DedupeAndTrim(req.Classes),
	}
	if details.Classes == nil {
		details.Classes = []string{}
	}
	if details.GardenName != "" {
		if err := s.checkPlacement(ctx, details.GardenName, details.Classes); err != nil {
			return nil, err
		}
	} else if req.Role == domain.RoleStaff {
		return nil, dErrors.New(dErrors.CodeValidation, "gardenName is required for staff")
	}
	return s.createPerson(ctx, req.Role, email, name, req.Password, details)
}

// CreateAdministrator creates a system administrator account.
func (s *Service) CreateAdministrator(ctx context.Context, email, name, password string) (*domain.Person, error) {
	email, name, err := s.checkNewAccount(ctx, email, name)
	if err != nil {
		return nil, err
	}
	return s.createPerson(ctx, domain.RoleSystemAdministrator, email, name, password, nil)
}

func (s *Service) createPerson(ctx context.Context, role domain.Role, email, name, password string, details *domain.StaffDetails) (*domain.Person, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	person := &domain.Person{
		Profile: domain.Profile{Email: email, Name: name, PasswordHash: hash},
		Role:    role,
		Staff:   details,
	}
	if err := person.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.people.ForRole(role).Create(ctx, email, person); err != nil {
		return nil, store.Translate(err, string(role))
	}
	s.logger.InfoContext(ctx, "account created",
		"email", email,
		"role", role,
		"request_id", requestcontext.RequestID(ctx),
	)
	person.PasswordHash = ""
	return person, nil
}

// checkNewAccount normalizes the identity fields and rejects an email that
// any role already uses.
func (s *Service) checkNewAccount(ctx context.Context, email, name string) (string, string, error) {
	email = kgstrings.NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if email == "" || !strings.Contains(email, "@") {
		return "", "", dErrors.New(dErrors.CodeValidation, "a valid email is required")
	}
	if name == "" {
		return "", "", dErrors.New(dErrors.CodeValidation, "name is required")
	}
	role, err := s.UserType(ctx, email)
	switch {
	case err == nil:
		return "", "", dErrors.New(dErrors.CodeConflict, fmt.Sprintf("email is already registered as %s", role))
	case !dErrors.HasCode(err, dErrors.CodeNotFound):
		return "", "", err
	}
	return email, name, nil
}

// FindParent loads a parent without the password hash.
func (s *Service) FindParent(ctx context.Context, email string) (*domain.Parent, error) {
	parent, err := s.parents.ByEmail(ctx, email)
	if err != nil {
		return nil, store.Translate(err, "parent")
	}
	parent.Password = ""
	return parent, nil
}

// FindStaff loads a staff member or director without the password hash.
func (s *Service) FindStaff(ctx context.Context, email string) (*domain.Person, error) {
	person, _, err := s.findStaff(ctx, kgstrings.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	person.PasswordHash = ""
	return person, nil
}

func (s *Service) findStaff(ctx context.Context, email string) (*domain.Person, *store.Repo[domain.Person], error) {
	for _, repo := range []*store.Repo[domain.Person]{s.people.Staff, s.people.Directors} {
		person, err := repo.Get(ctx, email)
		if err == nil {
			return person, repo, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, store.Translate(err, "staff member")
		}
	}
	return nil, nil, dErrors.New(dErrors.CodeNotFound, "staff member not found")
}

// StaffQuery narrows ListStaff. GardenName and Unassigned are exclusive; an
// empty query lists every staff member.
type StaffQuery struct {
	GardenName string
	Unassigned bool
}

// ListStaff returns staff members, without password hashes, in store order.
// Directors are not included.
func (s *Service) ListStaff(ctx context.Context, q StaffQuery) ([]*domain.Person, error) {
	q.GardenName = strings.TrimSpace(q.GardenName)
	if q.GardenName != "" && q.Unassigned {
		return nil, dErrors.New(dErrors.CodeValidation, "gardenName and unassigned cannot be combined")
	}
	var filters []docstore.Filter
	if q.GardenName != "" {
		filters = append(filters, docstore.Eq(pathStaffGarden, q.GardenName))
	}
	staff, err := s.people.Staff.Find(ctx, filters...)
	if err != nil {
		return nil, store.Translate(err, "staff")
	}
	out := make([]*domain.Person, 0, len(staff))
	for _, p := range staff {
		if q.Unassigned && p.Staff != nil && p.Staff.GardenName != "" {
			continue
		}
		p.PasswordHash = ""
		out = append(out, p)
	}
	return out, nil
}

// UserType reports which role owns email, probing parents, directors, staff,
// and administrators in that order.
func (s *Service) UserType(ctx context.Context, email string) (domain.Role, error) {
	email = kgstrings.NormalizeEmail(email)
	_, err := s.parents.Get(ctx, email)
	if err == nil {
		return domain.RoleParent, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return "", store.Translate(err, "parent")
	}
	for _, role := range []domain.Role{domain.RoleDirector, domain.RoleStaff, domain.RoleSystemAdministrator} {
		_, err := s.people.ForRole(role).Get(ctx, email)
		if err == nil {
			return role, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return "", store.Translate(err, string(role))
		}
	}
	return "", dErrors.New(dErrors.CodeNotFound, "user not found")
}

// Authenticate checks an email and password. Unknown emails and wrong
// passwords fail the same way.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Account, error) {
	email = kgstrings.NormalizeEmail(email)
	role, err := s.UserType(ctx, email)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return Account{}, errInvalidCredentials
	}
	if err != nil {
		return Account{}, err
	}

	var name, hash string
	if role == domain.RoleParent {
		parent, err := s.parents.ByEmail(ctx, email)
		if err != nil {
			return Account{}, store.Translate(err, "parent")
		}
		name, hash = parent.Name, parent.Password
	} else {
		person, err := s.people.ForRole(role).Get(ctx, email)
		if err != nil {
			return Account{}, store.Translate(err, string(role))
		}
		name, hash = person.Name, person.PasswordHash
	}
	if err := verifyPassword(password, hash); err != nil {
		s.logger.WarnContext(ctx, "login failed",
			"email", email,
			"request_id", requestcontext.RequestID(ctx),
		)
		return Account{}, err
	}
	return Account{Email: email, Name: name, Role: role}, nil
}

// AssignStaffToGarden places a staff member or director in a kindergarten and
// a set of its classes.
func (s *Service) AssignStaffToGarden(ctx context.Context, email, gardenName string, classes []string) error {
	email = kgstrings.NormalizeEmail(email)
	gardenName = strings.TrimSpace(gardenName)
	classes = kgstrings.DedupeAndTrim(classes)
	if classes == nil {
		classes = []string{}
	}
	if err := s.checkPlacement(ctx, gardenName, classes); err != nil {
		return err
	}
	err := docstore.RetryOnConflict(ctx, s.maxAttempts, nil, func(ctx context.Context) error {
		person, repo, err := s.findStaff(ctx, email)
		if err != nil {
			return err
		}
		_, err = repo.Update(ctx, email, person.Version,
			docstore.Set(pathStaffGarden, gardenName),
			docstore.Set(pathStaffClasses, classes))
		return err
	})
	return store.Translate(err, "staff member")
}

func (s *Service) checkPlacement(ctx context.Context, gardenName string, classes []string) error {
	garden, err := s.gardens.FindByName(ctx, gardenName)
	if err != nil {
		return store.Translate(err, "kindergarten")
	}
	for _, c := range classes {
		if garden.ClassIndex(c) < 0 {
			return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("class %s not found in %s", c, garden.Name))
		}
	}
	return nil
}
