package approval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"kindergarten/internal/docstore/memory"
	"kindergarten/internal/domain"
	"kindergarten/internal/enrollment"
	"kindergarten/internal/events"
	"kindergarten/internal/store/fixtures"
	dErrors "kindergarten/pkg/domain-errors"
)

const parentEmail = "parent@example.com"

type ApprovalSuite struct {
	suite.Suite
	ctx        context.Context
	store      *memory.Store
	sink       *events.MemorySink
	service    *Service
	enrollment *enrollment.Service
}

func TestApprovalSuite(t *testing.T) {
	suite.Run(t, new(ApprovalSuite))
}

func (s *ApprovalSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.sink = events.NewMemorySink(0)
	s.service = New(s.store, WithPublisher(events.NewPublisher(s.sink)))
	s.enrollment = enrollment.New(s.store)

	fixtures.SeedGarden(s.T(), s.store, fixtures.Sunflower())
	fixtures.SeedParent(s.T(), s.store, fixtures.Parent(parentEmail, "Noa"))
}

func (s *ApprovalSuite) register(id, name string, hobbies ...string) {
	_, err := s.enrollment.RegisterChild(s.ctx, fixtures.Child(id, name, 4, "Sunflower", hobbies...), parentEmail)
	s.Require().NoError(err)
}

// The end-to-end example: register into two classes, then approve.
func (s *ApprovalSuite) TestSunflowerApprovalStaysAtKindergartenLevel() {
	s.register("c1", "Maya", "101", "102")

	approved, err := s.service.IsChildApproved(s.ctx, "Sunflower", "c1")
	s.Require().NoError(err)
	s.False(approved)

	s.Require().NoError(s.service.SetApproval(s.ctx, "Sunflower", "c1", true))

	approved, err = s.service.IsChildApproved(s.ctx, "Sunflower", "c1")
	s.Require().NoError(err)
	s.True(approved)

	garden := fixtures.LoadGarden(s.T(), s.store, "Sunflower")
	s.True(garden.Children["c1"].Approved)
	for _, class := range garden.Classes {
		s.False(class.Children["c1"].Approved, "class %s map is not mirrored", class.CourseNumber)
	}
	s.Equal("Maya", garden.Children["c1"].Child.FullName, "only the flag is written")

	roster, err := s.service.ClassRoster(s.ctx, "Sunflower", "101")
	s.Require().NoError(err)
	s.Require().Len(roster, 1)
	s.True(roster[0].Approved, "roster derives approval from the kindergarten map")

	s.Len(s.sink.OfType(events.TypeApprovalChanged), 1)
}

func (s *ApprovalSuite) TestTogglingIsLastWriteWins() {
	s.register("c1", "Maya", "101")

	s.Require().NoError(s.service.SetApproval(s.ctx, "Sunflower", "c1", false))
	s.Require().NoError(s.service.SetApproval(s.ctx, "Sunflower", "c1", true))
	s.Require().NoError(s.service.SetApproval(s.ctx, "Sunflower", "c1", true))

	approved, err := s.service.IsChildApproved(s.ctx, "Sunflower", "c1")
	s.Require().NoError(err)
	s.True(approved)
}

func (s *ApprovalSuite) TestUnknownChildOrGarden() {
	err := s.service.SetApproval(s.ctx, "Sunflower", "ghost", true)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.NotContains(fixtures.LoadGarden(s.T(), s.store, "Sunflower").Children, "ghost")

	err = s.service.SetApproval(s.ctx, "Lily", "c1", true)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.IsChildApproved(s.ctx, "Sunflower", "ghost")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.ClassRoster(s.ctx, "Sunflower", "999")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ApprovalSuite) TestApprovedAndPendingChildren() {
	s.register("c1", "Yael", "101")
	s.register("c2", "Adam", "101")
	s.register("c3", "Lior", "102")
	s.Require().NoError(s.service.SetApproval(s.ctx, "Sunflower", "c1", true))
	s.Require().NoError(s.service.SetApproval(s.ctx, "Sunflower", "c3", true))

	approved, err := s.service.ApprovedChildren(s.ctx, "Sunflower")
	s.Require().NoError(err)
	s.Equal([]string{"Lior", "Yael"}, names(approved))

	pending, err := s.service.PendingChildren(s.ctx, "Sunflower")
	s.Require().NoError(err)
	s.Equal([]string{"Adam"}, names(pending))
}

func (s *ApprovalSuite) TestApprovalSurvivesResumedRegistration() {
	s.register("c1", "Maya", "101")
	s.Require().NoError(s.service.SetApproval(s.ctx, "Sunflower", "c1", true))

	// Registering the same child again must not revoke the approval.
	s.register("c1", "Maya", "101")
	approved, err := s.service.IsChildApproved(s.ctx, "Sunflower", "c1")
	s.Require().NoError(err)
	s.True(approved)
}

func names(children []domain.Child) []string {
	out := make([]string, len(children))
	for i, c := range children {
		out[i] = c.FullName
	}
	return out
}
