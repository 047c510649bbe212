package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindergarten/internal/domain"
	"kindergarten/internal/enrollment"
	"kindergarten/internal/fanout"
	dErrors "kindergarten/pkg/domain-errors"
	"kindergarten/pkg/testutil"
)

type stubEnrollment struct {
	EnrollmentService

	registered domain.Child
	parentID   string
	removed    []string
	resumed    string
	err        error
	id         string
}

func (s *stubEnrollment) RegisterChild(_ context.Context, child domain.Child, parentID string) (string, error) {
	s.registered, s.parentID = child, parentID
	return s.id, s.err
}

func (s *stubEnrollment) RemoveChild(_ context.Context, childID, gardenName, parentID string) error {
	s.removed = []string{childID, gardenName, parentID}
	return s.err
}

func (s *stubEnrollment) ResumeRegistration(_ context.Context, sagaID string) error {
	s.resumed = "register:" + sagaID
	return s.err
}

func (s *stubEnrollment) ResumeRemoval(_ context.Context, sagaID string) error {
	s.resumed = "remove:" + sagaID
	return s.err
}

func enrollmentRouter(stub *stubEnrollment) http.Handler {
	h := New(Deps{Enrollment: stub})
	r := chi.NewRouter()
	r.Post("/gardens/{garden}/children", h.handleRegisterChild)
	r.Delete("/gardens/{garden}/children/{child}", h.handleRemoveChild)
	r.Post("/admin/sagas/{saga}/resume", h.handleResumeSaga)
	return r
}

func partialRegistration(t *testing.T) error {
	t.Helper()
	plan := fanout.NewPlan(enrollment.OperationRegister).
		AddAborting("child", func(context.Context) error { return nil }).
		Add("parent", func(context.Context) error {
			return dErrors.New(dErrors.CodeStoreUnavailable, "store unavailable")
		})
	plan.SagaID = "saga-1"
	err := fanout.NewExecutor(nil, nil).Run(context.Background(), plan)
	require.Error(t, err)
	return err
}

func TestRegisterChildUsesCallerAndPath(t *testing.T) {
	stub := &stubEnrollment{id: "c1"}
	req := testutil.JSONRequest(t, http.MethodPost, "/gardens/Little%20Oak/children", map[string]any{
		"fullName": "Maya",
		"age":      4,
		"hobbies":  []string{"101"},
	})
	rr := testutil.Serve(enrollmentRouter(stub), testutil.AsActor(req, parentEmail, roleParent))

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, map[string]string{"childId": "c1"}, testutil.Decode[map[string]string](t, rr))
	assert.Equal(t, "Little Oak", stub.registered.GartenName)
	assert.Equal(t, []string{"101"}, stub.registered.Hobbies)
	assert.Equal(t, parentEmail, stub.parentID)
}

func TestRegisterChildPartialReportsSteps(t *testing.T) {
	stub := &stubEnrollment{id: "c1", err: partialRegistration(t)}
	req := testutil.JSONRequest(t, http.MethodPost, "/gardens/Sunflower/children", map[string]any{
		"fullName": "Maya",
		"age":      4,
	})
	rr := testutil.Serve(enrollmentRouter(stub), testutil.AsActor(req, parentEmail, roleParent))

	body := testutil.RequireError(t, rr, http.StatusBadGateway, string(dErrors.CodePartialFanOut))
	assert.Equal(t, "/gardens/Sunflower/children/c1", rr.Header().Get("Location"))

	var plan fanout.Plan
	require.NoError(t, json.Unmarshal(body.Details, &plan))
	assert.Equal(t, "saga-1", plan.SagaID)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, fanout.StatusDone, plan.Steps[0].Status)
	assert.Equal(t, fanout.StatusFailed, plan.Steps[1].Status)
	assert.Equal(t, dErrors.CodeStoreUnavailable, plan.Steps[1].Code)
}

func TestRemoveChildParentActsForThemselves(t *testing.T) {
	stub := &stubEnrollment{}
	req := testutil.JSONRequest(t, http.MethodDelete, "/gardens/Sunflower/children/c1?parent=other@example.com", nil)
	rr := testutil.Serve(enrollmentRouter(stub), testutil.AsActor(req, parentEmail, roleParent))

	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []string{"c1", "Sunflower", parentEmail}, stub.removed)
}

func TestRemoveChildManagerNamesParent(t *testing.T) {
	stub := &stubEnrollment{}
	req := testutil.JSONRequest(t, http.MethodDelete, "/gardens/Sunflower/children/c1?parent=noa@example.com", nil)
	rr := testutil.Serve(enrollmentRouter(stub), testutil.AsActor(req, directorEmail, roleDirector))

	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []string{"c1", "Sunflower", "noa@example.com"}, stub.removed)
}

func TestResumeSagaDispatchesByOperation(t *testing.T) {
	stub := &stubEnrollment{}
	router := enrollmentRouter(stub)

	rr := testutil.Serve(router, testutil.JSONRequest(t, http.MethodPost, "/admin/sagas/s1/resume", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "register:s1", stub.resumed)

	rr = testutil.Serve(router, testutil.JSONRequest(t, http.MethodPost, "/admin/sagas/s2/resume?operation="+enrollment.OperationRemove, nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "remove:s2", stub.resumed)

	rr = testutil.Serve(router, testutil.JSONRequest(t, http.MethodPost, "/admin/sagas/s3/resume?operation=bogus", nil))
	testutil.RequireError(t, rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
}

func TestResumeSagaNotFound(t *testing.T) {
	stub := &stubEnrollment{err: dErrors.New(dErrors.CodeNotFound, "saga not found")}
	rr := testutil.Serve(enrollmentRouter(stub), testutil.JSONRequest(t, http.MethodPost, "/admin/sagas/missing/resume", nil))
	body := testutil.RequireError(t, rr, http.StatusNotFound, string(dErrors.CodeNotFound))
	assert.Equal(t, "saga not found", body.Description)
}
