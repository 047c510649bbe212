// Package fixtures builds and seeds the documents feature tests start from.
package fixtures

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"kindergarten/internal/docstore"
	"kindergarten/internal/domain"
	"kindergarten/internal/store"
)

// Class builds a class with an empty roster.
func Class(courseNumber, courseType string, minAge, maxAge, maxChildren int) domain.GardenClass {
	return domain.GardenClass{
		ID:           uuid.NewString(),
		CourseNumber: courseNumber,
		CourseType:   courseType,
		MinAge:       minAge,
		MaxAge:       maxAge,
		MaxChildren:  maxChildren,
		Children:     map[string]domain.ChildStatus{},
	}
}

// Garden builds a closed kindergarten with classes.
func Garden(name string, classes ...domain.GardenClass) *domain.Garden {
	g := &domain.Garden{
		ID:                        uuid.NewString(),
		Name:                      name,
		Address:                   "1 Meadow Lane",
		City:                      "Haifa",
		PhoneNumber:               "04-0000000",
		OpenTime:                  "07:30",
		CloseTime:                 "16:00",
		OrganizationalAffiliation: "Municipal",
		Classes:                   classes,
	}
	g.Normalize()
	return g
}

// Sunflower is the kindergarten with classes 101 and 102 used across tests.
func Sunflower() *domain.Garden {
	return Garden("Sunflower",
		Class("101", "Art", 3, 6, 20),
		Class("102", "Music", 3, 6, 20),
	)
}

// Parent builds a parent with no children.
func Parent(email, name string) *domain.Parent {
	p := &domain.Parent{Email: email, Name: name, Password: "hash"}
	p.Normalize()
	return p
}

// Child builds a child for gardenName enrolled in hobbies.
func Child(id, fullName string, age int, gardenName string, hobbies ...string) domain.Child {
	c := domain.Child{ID: id, FullName: fullName, Age: age, GartenName: gardenName, Hobbies: hobbies}
	c.Normalize()
	return c
}

// SeedGarden stores g under its id.
func SeedGarden(t testing.TB, ds docstore.Store, g *domain.Garden) *domain.Garden {
	t.Helper()
	_, err := store.NewGardens(ds).Create(context.Background(), g.ID, g)
	require.NoError(t, err)
	return g
}

// SeedParent stores p under its email.
func SeedParent(t testing.TB, ds docstore.Store, p *domain.Parent) *domain.Parent {
	t.Helper()
	_, err := store.NewParents(ds).Create(context.Background(), p.Email, p)
	require.NoError(t, err)
	return p
}

// SeedChild stores c standalone under its id.
func SeedChild(t testing.TB, ds docstore.Store, c domain.Child) {
	t.Helper()
	_, err := store.NewChildren(ds).Create(context.Background(), c.ID, &c)
	require.NoError(t, err)
}

// LoadGarden reads the first kindergarten called name.
func LoadGarden(t testing.TB, ds docstore.Store, name string) *domain.Garden {
	t.Helper()
	g, err := store.NewGardens(ds).FindByName(context.Background(), name)
	require.NoError(t, err)
	return g
}

// LoadParent reads the parent keyed by email.
func LoadParent(t testing.TB, ds docstore.Store, email string) *domain.Parent {
	t.Helper()
	p, err := store.NewParents(ds).ByEmail(context.Background(), email)
	require.NoError(t, err)
	return p
}

// LoadChildren reads every standalone child document with id.
func LoadChildren(t testing.TB, ds docstore.Store, id string) []*domain.Child {
	t.Helper()
	children, _, err := store.NewChildren(ds).ByChildID(context.Background(), id)
	require.NoError(t, err)
	return children
}

// SeedDirector stores a director managing the kindergarten ids.
func SeedDirector(t testing.TB, ds docstore.Store, email string, gardenIDs ...string) *domain.Person {
	t.Helper()
	if gardenIDs == nil {
		gardenIDs = []string{}
	}
	p := &domain.Person{
		Profile:  domain.Profile{Email: email, Name: "Director"},
		Role:     domain.RoleDirector,
		Staff:    &domain.StaffDetails{Classes: []string{}},
		Director: &domain.DirectorDetails{Kindergartens: gardenIDs},
	}
	_, err := store.NewPeople(ds).Directors.Create(context.Background(), email, p)
	require.NoError(t, err)
	return p
}
