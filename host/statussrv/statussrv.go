// Package statussrv exposes the controller's status/debug state over
// HTTP, grounded on nasa-jpl-golaborate/generichttp/motion's
// RouteTable-and-bind pattern (MethodPath -> http.HandlerFunc map,
// bound onto a github.com/go-chi/chi router) rather than the teacher
// (amken3d-gopper carries no HTTP server at all; this is a new,
// host-only surface spec.md §6 calls out as a debug/introspection
// channel distinct from the ASCII line protocol).
package statussrv

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"

	"tinygfw/machine/status"
)

// Reporter is the subset of *controller.Controller this server needs:
// a live snapshot and the compressed report history.
type Reporter interface {
	Report() status.Report
	History() *status.History
}

// MethodPath pairs an HTTP method with a chi route pattern, following
// generichttp.RouteTable2's router-agnostic route key.
type MethodPath struct {
	Method, Path string
}

// RouteTable maps routes to handlers; Bind installs every entry on a
// chi.Router.
type RouteTable map[MethodPath]http.HandlerFunc

// Bind installs every route in the table onto mux, plus a synthesized
// /endpoints listing.
func (rt RouteTable) Bind(mux chi.Router) {
	for mp, h := range rt {
		mux.Method(mp.Method, mp.Path, h)
	}
	if _, exists := rt[MethodPath{Method: http.MethodGet, Path: "/endpoints"}]; !exists {
		mux.Get("/endpoints", rt.endpointsHandler())
	}
}

func (rt RouteTable) endpointsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routes := make([]string, 0, len(rt))
		for mp := range rt {
			routes = append(routes, mp.Method+" "+mp.Path)
		}
		writeJSON(w, http.StatusOK, routes)
	}
}

// Routes builds the status-server route table for a Reporter.
func Routes(rep Reporter) RouteTable {
	return RouteTable{
		{Method: http.MethodGet, Path: "/status"}:         getStatus(rep),
		{Method: http.MethodGet, Path: "/status/history"}: getHistory(rep),
	}
}

// NewRouter builds a ready-to-serve chi.Router for rep.
func NewRouter(rep Reporter) chi.Router {
	mux := chi.NewRouter()
	Routes(rep).Bind(mux)
	return mux
}

func getStatus(rep Reporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rep.Report())
	}
}

func getHistory(rep Reporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		live := rep.History().Live()
		archived, err := rep.History().Archived()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		all := append(archived, live...)
		writeJSON(w, http.StatusOK, all)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
