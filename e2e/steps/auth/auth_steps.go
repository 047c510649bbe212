package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(method, path, actor string, body any) error
	Expand(s string) string
	AdminCredentials() (string, string)
	SetClientIP(ip string)
	SetToken(email, token string)
	LastStatus() int
	LastBody() []byte
	ResponseField(field string) (any, error)
}

// RegisterSteps registers sign-up, login and lockout step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &authSteps{tc: tc}

	ctx.Step(`^a parent "([^"]*)" has signed up with password "([^"]*)"$`, steps.parentSignedUp)
	ctx.Step(`^I log in as "([^"]*)" with password "([^"]*)"$`, steps.logIn)
	ctx.Step(`^I am logged in as "([^"]*)" with password "([^"]*)"$`, steps.loggedIn)
	ctx.Step(`^I am logged in as the administrator$`, steps.loggedInAsAdmin)
	ctx.Step(`^I am connecting from "([^"]*)"$`, steps.connectingFrom)
	ctx.Step(`^I fail to log in as "([^"]*)" (\d+) times$`, steps.failLogins)
}

type authSteps struct {
	tc TestContext
}

func (s *authSteps) parentSignedUp(ctx context.Context, email, password string) error {
	err := s.tc.Do(http.MethodPost, "/parents", "", map[string]any{
		"email":    s.tc.Expand(email),
		"name":     "E2E Parent",
		"password": password,
	})
	if err != nil {
		return err
	}
	if s.tc.LastStatus() != http.StatusCreated {
		return fmt.Errorf("sign up failed with %d: %s", s.tc.LastStatus(), s.tc.LastBody())
	}
	return nil
}

func (s *authSteps) logIn(ctx context.Context, email, password string) error {
	email = s.tc.Expand(email)
	return s.login(email, email, password)
}

// login stores the issued token under alias when the login succeeds.
func (s *authSteps) login(alias, email, password string) error {
	err := s.tc.Do(http.MethodPost, "/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return err
	}
	if s.tc.LastStatus() != http.StatusOK {
		return nil
	}
	token, err := s.tc.ResponseField("access_token")
	if err != nil {
		return err
	}
	s.tc.SetToken(alias, fmt.Sprint(token))
	return nil
}

func (s *authSteps) loggedIn(ctx context.Context, email, password string) error {
	if err := s.logIn(ctx, email, password); err != nil {
		return err
	}
	return s.requireOK(email)
}

// loggedInAsAdmin stores the bootstrap administrator's token under the alias
// "admin".
func (s *authSteps) loggedInAsAdmin(ctx context.Context) error {
	email, password := s.tc.AdminCredentials()
	if email == "" {
		return fmt.Errorf("E2E_ADMIN_EMAIL is not set")
	}
	if err := s.login("admin", email, password); err != nil {
		return err
	}
	return s.requireOK(email)
}

func (s *authSteps) requireOK(email string) error {
	if s.tc.LastStatus() != http.StatusOK {
		return fmt.Errorf("login as %s failed with %d: %s", email, s.tc.LastStatus(), s.tc.LastBody())
	}
	return nil
}

func (s *authSteps) connectingFrom(ctx context.Context, ip string) error {
	s.tc.SetClientIP(s.tc.Expand(ip))
	return nil
}

func (s *authSteps) failLogins(ctx context.Context, email string, times int) error {
	for i := 0; i < times; i++ {
		if err := s.logIn(ctx, email, "definitely-wrong"); err != nil {
			return err
		}
		if s.tc.LastStatus() != http.StatusUnauthorized {
			return fmt.Errorf("attempt %d: expected 401, got %d", i+1, s.tc.LastStatus())
		}
	}
	return nil
}
