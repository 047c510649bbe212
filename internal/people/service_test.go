package people

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"kindergarten/internal/docstore/memory"
	"kindergarten/internal/domain"
	"kindergarten/internal/store"
	"kindergarten/internal/store/fixtures"
	dErrors "kindergarten/pkg/domain-errors"
)

const password = "correct-horse"

type PeopleSuite struct {
	suite.Suite
	ctx     context.Context
	store   *memory.Store
	service *Service
}

func TestPeopleSuite(t *testing.T) {
	suite.Run(t, new(PeopleSuite))
}

func (s *PeopleSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.service = New(s.store)
	fixtures.SeedGarden(s.T(), s.store, fixtures.Sunflower())
}

func (s *PeopleSuite) TestSignUpParent() {
	parent, err := s.service.SignUpParent(s.ctx, SignUp{Email: " Noa@Example.com ", Name: "Noa", Password: password})
	s.Require().NoError(err)
	s.Equal("noa@example.com", parent.Email)
	s.Empty(parent.Password, "the hash is not returned")
	s.Empty(parent.Children)

	stored := fixtures.LoadParent(s.T(), s.store, "noa@example.com")
	s.NotEqual(password, stored.Password)
	s.NoError(verifyPassword(password, stored.Password))

	_, err = s.service.SignUpParent(s.ctx, SignUp{Email: "noa@example.com", Name: "Noa", Password: password})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *PeopleSuite) TestSignUpValidation() {
	cases := []SignUp{
		{Email: "not-an-email", Name: "X", Password: password},
		{Email: "x@example.com", Name: " ", Password: password},
		{Email: "x@example.com", Name: "X", Password: "short"},
	}
	for _, req := range cases {
		_, err := s.service.SignUpParent(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation), "%+v", req)
	}
}

func (s *PeopleSuite) TestCreateStaff() {
	staff, err := s.service.CreateStaff(s.ctx, NewStaff{
		Email: "gil@example.com", Name: "Gil", Password: password,
		Role: domain.RoleStaff, GardenName: "Sunflower", Classes: []string{"101", "101"},
	})
	s.Require().NoError(err)
	s.Equal([]string{"101"}, staff.Staff.Classes)
	s.Empty(staff.PasswordHash)

	found, err := s.service.FindStaff(s.ctx, "GIL@example.com")
	s.Require().NoError(err)
	s.Equal("Sunflower", found.Staff.GardenName)

	_, err = s.service.CreateStaff(s.ctx, NewStaff{Email: "a@example.com", Name: "A", Password: password, Role: domain.RoleStaff})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "staff needs a kindergarten")

	_, err = s.service.CreateStaff(s.ctx, NewStaff{Email: "b@example.com", Name: "B", Password: password, Role: domain.RoleStaff, GardenName: "Nowhere"})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.CreateStaff(s.ctx, NewStaff{Email: "c@example.com", Name: "C", Password: password, Role: domain.RoleStaff, GardenName: "Sunflower", Classes: []string{"999"}})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.CreateStaff(s.ctx, NewStaff{Email: "d@example.com", Name: "D", Password: password, Role: domain.RoleParent})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	director, err := s.service.CreateStaff(s.ctx, NewStaff{Email: "dana@example.com", Name: "Dana", Password: password, Role: domain.RoleDirector})
	s.Require().NoError(err)
	s.NotNil(director.Director)
}

func (s *PeopleSuite) TestUserTypeProbesEveryRole() {
	_, err := s.service.SignUpParent(s.ctx, SignUp{Email: "p@example.com", Name: "P", Password: password})
	s.Require().NoError(err)
	_, err = s.service.CreateStaff(s.ctx, NewStaff{Email: "s@example.com", Name: "S", Password: password, Role: domain.RoleStaff, GardenName: "Sunflower"})
	s.Require().NoError(err)
	_, err = s.service.CreateStaff(s.ctx, NewStaff{Email: "d@example.com", Name: "D", Password: password, Role: domain.RoleDirector})
	s.Require().NoError(err)
	_, err = s.service.CreateAdministrator(s.ctx, "a@example.com", "A", password)
	s.Require().NoError(err)

	for email, want := range map[string]domain.Role{
		"p@example.com": domain.RoleParent,
		"s@example.com": domain.RoleStaff,
		"d@example.com": domain.RoleDirector,
		"A@example.com": domain.RoleSystemAdministrator,
	} {
		got, err := s.service.UserType(s.ctx, email)
		s.Require().NoError(err)
		s.Equal(want, got, email)
	}

	_, err = s.service.UserType(s.ctx, "nobody@example.com")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.CreateAdministrator(s.ctx, "p@example.com", "P", password)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), "emails are unique across roles")
}

func (s *PeopleSuite) TestAuthenticate() {
	_, err := s.service.SignUpParent(s.ctx, SignUp{Email: "p@example.com", Name: "Pat", Password: password})
	s.Require().NoError(err)
	_, err = s.service.CreateAdministrator(s.ctx, "a@example.com", "Ari", password)
	s.Require().NoError(err)

	account, err := s.service.Authenticate(s.ctx, "P@example.com", password)
	s.Require().NoError(err)
	s.Equal(Account{Email: "p@example.com", Name: "Pat", Role: domain.RoleParent}, account)

	account, err = s.service.Authenticate(s.ctx, "a@example.com", password)
	s.Require().NoError(err)
	s.Equal(domain.RoleSystemAdministrator, account.Role)

	_, err = s.service.Authenticate(s.ctx, "p@example.com", "wrong-password")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.Authenticate(s.ctx, "ghost@example.com", password)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *PeopleSuite) TestAssignStaffToGarden() {
	fixtures.SeedGarden(s.T(), s.store, fixtures.Garden("Tulip", fixtures.Class("201", "Dance", 4, 6, 10)))
	_, err := s.service.CreateStaff(s.ctx, NewStaff{Email: "s@example.com", Name: "S", Password: password, Role: domain.RoleStaff, GardenName: "Sunflower"})
	s.Require().NoError(err)

	s.Require().NoError(s.service.AssignStaffToGarden(s.ctx, "s@example.com", "Tulip", []string{"201"}))

	person, err := store.NewPeople(s.store).Staff.Get(s.ctx, "s@example.com")
	s.Require().NoError(err)
	s.Equal("Tulip", person.Staff.GardenName)
	s.Equal([]string{"201"}, person.Staff.Classes)

	s.True(dErrors.HasCode(s.service.AssignStaffToGarden(s.ctx, "s@example.com", "Tulip", []string{"101"}), dErrors.CodeNotFound))
	s.True(dErrors.HasCode(s.service.AssignStaffToGarden(s.ctx, "ghost@example.com", "Tulip", nil), dErrors.CodeNotFound))
}

func (s *PeopleSuite) TestFindParent() {
	_, err := s.service.SignUpParent(s.ctx, SignUp{Email: "p@example.com", Name: "Pat", Password: password})
	s.Require().NoError(err)

	parent, err := s.service.FindParent(s.ctx, "p@example.com")
	s.Require().NoError(err)
	s.Equal("Pat", parent.Name)
	s.Empty(parent.Password)

	_, err = s.service.FindParent(s.ctx, "ghost@example.com")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *PeopleSuite) TestListStaff() {
	fixtures.SeedGarden(s.T(), s.store, fixtures.Garden("Tulip"))
	for email, garden := range map[string]string{"gil@example.com": "Sunflower", "tal@example.com": "Tulip"} {
		_, err := s.service.CreateStaff(s.ctx, NewStaff{
			Email: email, Name: "Staff", Password: password, Role: domain.RoleStaff, GardenName: garden,
		})
		s.Require().NoError(err)
	}
	_, err := s.service.CreateStaff(s.ctx, NewStaff{
		Email: "dana@example.com", Name: "Dana", Password: password, Role: domain.RoleDirector, GardenName: "Sunflower",
	})
	s.Require().NoError(err)
	floating := &domain.Person{
		Profile: domain.Profile{Email: "ori@example.com", Name: "Ori"},
		Role:    domain.RoleStaff,
		Staff:   &domain.StaffDetails{Classes: []string{}},
	}
	_, err = store.NewPeople(s.store).Staff.Create(s.ctx, floating.Email, floating)
	s.Require().NoError(err)

	emails := func(people []*domain.Person) []string {
		out := make([]string, 0, len(people))
		for _, p := range people {
			s.Empty(p.PasswordHash)
			out = append(out, p.Email)
		}
		return out
	}

	inSunflower, err := s.service.ListStaff(s.ctx, StaffQuery{GardenName: "Sunflower"})
	s.Require().NoError(err)
	s.Equal([]string{"gil@example.com"}, emails(inSunflower), "directors are not listed")

	unassigned, err := s.service.ListStaff(s.ctx, StaffQuery{Unassigned: true})
	s.Require().NoError(err)
	s.Equal([]string{"ori@example.com"}, emails(unassigned))

	all, err := s.service.ListStaff(s.ctx, StaffQuery{})
	s.Require().NoError(err)
	s.ElementsMatch([]string{"gil@example.com", "tal@example.com", "ori@example.com"}, emails(all))

	_, err = s.service.ListStaff(s.ctx, StaffQuery{GardenName: "Tulip", Unassigned: true})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
