package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/gorilla/mux"

	"lendscan/internal/eventbus"
)

func testRouter(t *testing.T) *mux.Router {
	t.Helper()
	server := NewServer(nil, nil, eventbus.New(), "0", 0, "")
	return server.httpServer.Handler.(*mux.Router)
}

func TestRegisteredRoutes(t *testing.T) {
	router := testRouter(t)

	cases := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/status"},
		{"GET", "/ws"},
		{"GET", "/markets"},
		{"GET", "/markets/count"},
		{"GET", "/markets/address/neutron1marketaaaa"},
		{"GET", "/markets/7"},
		{"GET", "/markets/7/snapshots"},
		{"GET", "/markets/7/accruals"},
		{"GET", "/markets/7/positions"},
		{"GET", "/markets/7/positions/neutron1alice"},
		{"GET", "/markets/7/transactions"},
		{"GET", "/positions/at-risk"},
		{"GET", "/positions/neutron1alice"},
		{"GET", "/transactions"},
		{"GET", "/transactions/AB12CD"},
		{"POST", "/admin/rollback/90"},
		{"POST", "/admin/reconcile/7"},
	}
	for _, tc := range cases {
		req, _ := http.NewRequest(tc.method, tc.path, nil)
		var match mux.RouteMatch
		if !router.Match(req, &match) {
			t.Fatalf("missing route: %s %s", tc.method, tc.path)
		}
	}
}

// Fixed segments must win over the {id} catch-alls.
func TestRoutePrecedence(t *testing.T) {
	router := testRouter(t)

	req, _ := http.NewRequest("GET", "/markets/count", nil)
	var match mux.RouteMatch
	if !router.Match(req, &match) {
		t.Fatal("missing route: GET /markets/count")
	}
	if id, ok := match.Vars["id"]; ok {
		t.Fatalf("/markets/count captured by {id} route as id=%q", id)
	}

	req, _ = http.NewRequest("GET", "/positions/at-risk", nil)
	match = mux.RouteMatch{}
	if !router.Match(req, &match) {
		t.Fatal("missing route: GET /positions/at-risk")
	}
	if user, ok := match.Vars["user"]; ok {
		t.Fatalf("/positions/at-risk captured by {user} route as user=%q", user)
	}
}

func TestAdminRoutesArePostOnly(t *testing.T) {
	router := testRouter(t)

	req, _ := http.NewRequest("GET", "/admin/rollback/90", nil)
	var match mux.RouteMatch
	if router.Match(req, &match) {
		t.Fatal("GET should not match the rollback route")
	}
	if !errors.Is(match.MatchErr, mux.ErrMethodMismatch) {
		t.Fatalf("got=%v want %v", match.MatchErr, mux.ErrMethodMismatch)
	}
}
