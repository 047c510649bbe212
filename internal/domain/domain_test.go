package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "kindergarten/pkg/domain-errors"
)

func TestWindowExpiryUsesCalendarDays(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jerusalem")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// Israel switches to summer time on the Friday before the last Sunday of
	// March, so three calendar days here span 71 hours.
	start := time.Date(2024, 3, 27, 12, 0, 0, 0, loc)
	g := Garden{IsRegistered: true, RegistrationStartDate: &start}

	expiry, ok := g.WindowExpiry()
	require.True(t, ok)
	assert.Equal(t, 71*time.Hour, expiry.Sub(start))
	assert.False(t, g.WindowExpired(start.Add(71*time.Hour)))
	assert.True(t, g.WindowExpired(start.Add(71*time.Hour+time.Second)))
}

func TestWindowExpired(t *testing.T) {
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	t.Run("closed window never expires", func(t *testing.T) {
		g := Garden{RegistrationStartDate: &start}
		assert.False(t, g.WindowExpired(start.AddDate(1, 0, 0)))
	})

	t.Run("open without start date is expired", func(t *testing.T) {
		g := Garden{IsRegistered: true}
		assert.True(t, g.WindowExpired(start))
	})

	t.Run("boundary is exclusive", func(t *testing.T) {
		g := Garden{IsRegistered: true, RegistrationStartDate: &start}
		assert.False(t, g.WindowExpired(start.AddDate(0, 0, 3)))
		assert.True(t, g.WindowExpired(start.AddDate(0, 0, 3).Add(time.Nanosecond)))
	})
}

func TestOpenTransition(t *testing.T) {
	g := Garden{}
	require.NoError(t, g.CanOpen())

	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	g.ApplyOpen(now)
	assert.True(t, g.IsRegistered)
	assert.Equal(t, now, *g.RegistrationStartDate)

	err := g.CanOpen()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	g.ApplyClose()
	assert.False(t, g.IsRegistered)
	assert.NotNil(t, g.RegistrationStartDate, "start date is kept as history")
}

func TestAverageRating(t *testing.T) {
	assert.Zero(t, (&Garden{}).AverageRating())

	g := Garden{Reviews: []Review{{Rating: 8}, {Rating: 9}, {Rating: 10}}}
	assert.InDelta(t, 90.0, g.AverageRating(), 1e-9)
}

func TestGardenClassBounds(t *testing.T) {
	c := GardenClass{CourseNumber: "101", MinAge: 3, MaxAge: 5, MaxChildren: 1, Children: map[string]ChildStatus{}}
	assert.True(t, c.AcceptsAge(3))
	assert.True(t, c.AcceptsAge(5))
	assert.False(t, c.AcceptsAge(6))
	assert.False(t, c.Full())

	c.Children["c1"] = ChildStatus{}
	assert.True(t, c.Full())

	assert.True(t, dErrors.HasCode(GardenClass{CourseNumber: "x", MinAge: 5, MaxAge: 3}.Validate(), dErrors.CodeValidation))
}

func TestChildNormalize(t *testing.T) {
	c := Child{FullName: "  Noa ", GartenName: " Sunflower", Hobbies: []string{"101", " 101", "102"}}
	c.Normalize()
	assert.Equal(t, "Noa", c.FullName)
	assert.Equal(t, "Sunflower", c.GartenName)
	assert.Equal(t, []string{"101", "102"}, c.Hobbies)
	assert.NotNil(t, c.Notes)
	assert.True(t, c.HasHobby("102"))
}

func TestPersonValidate(t *testing.T) {
	t.Run("director gets payloads", func(t *testing.T) {
		p := Person{Profile: Profile{Email: "d@example.com"}, Role: RoleDirector}
		require.NoError(t, p.Validate())
		assert.NotNil(t, p.Director)
		assert.NotNil(t, p.Staff)
	})

	t.Run("parent is not a person account", func(t *testing.T) {
		p := Person{Profile: Profile{Email: "p@example.com"}, Role: RoleParent}
		assert.True(t, dErrors.HasCode(p.Validate(), dErrors.CodeValidation))
	})

	t.Run("role parsing", func(t *testing.T) {
		r, err := ParseRole("director")
		require.NoError(t, err)
		assert.True(t, r.CanManageGardens())
		_, err = ParseRole("janitor")
		assert.Error(t, err)
	})
}

func TestValidateChildID(t *testing.T) {
	for _, id := range []string{"c1", "maya_2024", "6f1c-44aa"} {
		assert.NoError(t, ValidateChildID(id), id)
	}
	for _, id := range []string{"", "a.b", "$set", "with space", "a/b", string(make([]byte, MaxChildIDLength+1))} {
		assert.True(t, dErrors.HasCode(ValidateChildID(id), dErrors.CodeValidation), "%q", id)
	}

	c := Child{ID: "a.b", FullName: "Maya", GartenName: "Sunflower"}
	assert.True(t, dErrors.HasCode(c.Validate(), dErrors.CodeValidation))
	c.ID = ""
	assert.NoError(t, c.Validate())
}
