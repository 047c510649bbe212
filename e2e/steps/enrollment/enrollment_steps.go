package enrollment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(method, path, actor string, body any) error
	Expand(s string) string
	LastStatus() int
	LastBody() []byte
}

// admin is the token alias the auth steps store the administrator under.
const admin = "admin"

// RegisterSteps registers kindergarten, registration and approval steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &enrollmentSteps{tc: tc}

	ctx.Step(`^the administrator creates kindergarten "([^"]*)" in "([^"]*)" with class "([^"]*)" of type "([^"]*)" for ages (\d+) to (\d+)$`, steps.createGarden)
	ctx.Step(`^the administrator opens registration for "([^"]*)"$`, steps.openRegistration)
	ctx.Step(`^"([^"]*)" registers child "([^"]*)" named "([^"]*)" aged (\d+) in "([^"]*)" for class "([^"]*)"$`, steps.registerChild)
	ctx.Step(`^"([^"]*)" removes child "([^"]*)" from "([^"]*)"$`, steps.removeChild)
	ctx.Step(`^the administrator approves child "([^"]*)" in "([^"]*)"$`, steps.approveChild)
	ctx.Step(`^the administrator lists children of "([^"]*)" with approved "(true|false)"$`, steps.listChildren)
	ctx.Step(`^"([^"]*)" reviews "([^"]*)" with rating (\d+)$`, steps.review)
}

type enrollmentSteps struct {
	tc TestContext
}

func (s *enrollmentSteps) gardenPath(garden string) string {
	return "/gardens/" + url.PathEscape(s.tc.Expand(garden))
}

func (s *enrollmentSteps) expect(status int, what string) error {
	if s.tc.LastStatus() != status {
		return fmt.Errorf("%s: expected %d, got %d: %s", what, status, s.tc.LastStatus(), s.tc.LastBody())
	}
	return nil
}

func (s *enrollmentSteps) createGarden(ctx context.Context, garden, city, course, courseType string, minAge, maxAge int) error {
	err := s.tc.Do(http.MethodPost, "/gardens", admin, map[string]any{
		"name": s.tc.Expand(garden),
		"city": city,
		"classes": []map[string]any{{
			"courseNumber": course,
			"courseType":   courseType,
			"maxChildren":  20,
			"minAge":       minAge,
			"maxAge":       maxAge,
		}},
	})
	if err != nil {
		return err
	}
	return s.expect(http.StatusCreated, "create kindergarten")
}

func (s *enrollmentSteps) openRegistration(ctx context.Context, garden string) error {
	if err := s.tc.Do(http.MethodPost, s.gardenPath(garden)+"/registration/open", admin, nil); err != nil {
		return err
	}
	return s.expect(http.StatusOK, "open registration")
}

func (s *enrollmentSteps) registerChild(ctx context.Context, parent, childID, name string, age int, garden, course string) error {
	return s.tc.Do(http.MethodPost, s.gardenPath(garden)+"/children", s.tc.Expand(parent), map[string]any{
		"id":       s.tc.Expand(childID),
		"fullName": name,
		"age":      age,
		"hobbies":  []string{course},
	})
}

func (s *enrollmentSteps) removeChild(ctx context.Context, parent, childID, garden string) error {
	path := s.gardenPath(garden) + "/children/" + url.PathEscape(s.tc.Expand(childID))
	return s.tc.Do(http.MethodDelete, path, s.tc.Expand(parent), nil)
}

func (s *enrollmentSteps) approveChild(ctx context.Context, childID, garden string) error {
	path := s.gardenPath(garden) + "/children/" + url.PathEscape(s.tc.Expand(childID)) + "/approval"
	if err := s.tc.Do(http.MethodPut, path, admin, map[string]any{"approved": true}); err != nil {
		return err
	}
	return s.expect(http.StatusOK, "approve child")
}

func (s *enrollmentSteps) listChildren(ctx context.Context, garden, approved string) error {
	return s.tc.Do(http.MethodGet, s.gardenPath(garden)+"/children?approved="+approved, admin, nil)
}

func (s *enrollmentSteps) review(ctx context.Context, parent, garden string, rating int) error {
	return s.tc.Do(http.MethodPost, s.gardenPath(garden)+"/reviews", s.tc.Expand(parent), map[string]any{
		"rating":  rating,
		"comment": "e2e review",
	})
}
