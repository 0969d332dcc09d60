package app

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unistock-erp/unistock-erp/internal/shared"
)

func identityRequest(headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/requests", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestIdentityMiddlewareBuildsActorFromHeaders(t *testing.T) {
	var got shared.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := shared.ActorFromContext(r.Context())
		require.True(t, ok)
		got = actor
		w.WriteHeader(http.StatusOK)
	})

	handler := IdentityMiddleware(slog.Default())(next)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, identityRequest(map[string]string{
		HeaderActorID:        "42",
		HeaderActorRole:      "warehouse_staff",
		HeaderActorWarehouse: "3",
	}))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, int64(42), got.ID)
	require.Equal(t, shared.RoleWarehouseStaff, got.Role)
	require.Equal(t, int64(3), got.WarehouseID)
	require.Zero(t, got.UnitID)
}

func TestIdentityMiddlewareRejectsMissingOrUnknownIdentity(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without identity")
	})
	handler := IdentityMiddleware(slog.Default())(next)

	cases := []map[string]string{
		{},
		{HeaderActorID: "42"},
		{HeaderActorID: "42", HeaderActorRole: "janitor"},
		{HeaderActorID: "0", HeaderActorRole: "unit_staff"},
		{HeaderActorID: "abc", HeaderActorRole: "unit_staff"},
	}
	for _, headers := range cases {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, identityRequest(headers))
		require.Equal(t, http.StatusUnauthorized, rr.Code)
		require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	}
}

func TestIdentityMiddlewareIgnoresMalformedScopeHeaders(t *testing.T) {
	var got shared.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = shared.ActorFromContext(r.Context())
	})
	handler := IdentityMiddleware(slog.Default())(next)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, identityRequest(map[string]string{
		HeaderActorID:      "7",
		HeaderActorRole:    "unit_staff",
		HeaderActorUnit:    "not-a-number",
		HeaderActorFaculty: "-2",
	}))

	require.Equal(t, int64(7), got.ID)
	require.Zero(t, got.UnitID)
	require.Zero(t, got.FacultyID)
}
