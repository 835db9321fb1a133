// SPDX-License-Identifier: GPL-3.0-or-later

// Package svcplane gives external status-notify subscribers a path-based
// registration surface, grounded on agent/rest_agent.go's mux.Router
// registration style (one HandleFunc per concern: /register, /fetch,
// /build). Spec §4.K's on_status_notify is a local, in-process callback,
// not a wire protocol, so Router never opens a socket: it reuses
// gorilla/mux purely as a pattern-matching dispatch table over a synthetic
// request, routing each status event to whichever Handler registered the
// matching path.
package svcplane

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/mux"

	"github.com/dtn7x/bpa/bpv7"
	"github.com/dtn7x/bpa/bpv7/admin"
	"github.com/dtn7x/bpa/service"
)

// Handler receives one routed status event, with path variables extracted
// by the matching route (e.g. {source} in "/sources/{source}/status").
type Handler func(vars map[string]string, id bpv7.BundleID, kind service.StatusKind, reason admin.StatusReportReason, timestamp bpv7.DtnTime)

// Router dispatches status-notify events to Handlers registered under an
// HTTP-style path pattern.
type Router struct {
	mu       sync.RWMutex
	mux      *mux.Router
	handlers map[string]Handler
}

// NewRouter creates an empty Router. UseEncodedPath keeps a percent-escaped
// "/" (as found in a path-escaped dtn-scheme EID) from being decoded back
// into a segment boundary before matching, which would otherwise split a
// single {source} variable across two segments.
func NewRouter() *Router {
	m := mux.NewRouter()
	m.UseEncodedPath()
	return &Router{mux: m, handlers: make(map[string]Handler)}
}

// Handle binds h to every status event whose dispatch path matches
// pattern. Panics on a duplicate pattern, mirroring mux.Router's own
// panic on a route name collision.
func (r *Router) Handle(pattern string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[pattern]; exists {
		panic(fmt.Sprintf("svcplane: pattern %q already has a handler", pattern))
	}
	r.mux.Path(pattern).Name(pattern)
	r.handlers[pattern] = h
}

// Dispatch routes one status event addressed to path to its matching
// Handler, if any. Unmatched paths are dropped silently: not every status
// event need have a subscriber.
func (r *Router) Dispatch(path string, id bpv7.BundleID, kind service.StatusKind, reason admin.StatusReportReason, timestamp bpv7.DtnTime) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req, err := http.NewRequest(http.MethodPost, path, nil)
	if err != nil {
		return false
	}

	var match mux.RouteMatch
	if !r.mux.Match(req, &match) || match.Route == nil {
		return false
	}

	h, ok := r.handlers[match.Route.GetName()]
	if !ok {
		return false
	}

	h(match.Vars, id, kind, reason, timestamp)
	return true
}

// ServiceAdapter implements service.Service, bridging service.Registry's
// NotifyStatus calls into a Router keyed by the sending source endpoint,
// so an HTTP-style subscriber never has to implement service.Service
// itself. OnReceive is a no-op: this adapter exists only for the status
// plane, not bundle delivery.
type ServiceAdapter struct {
	router *Router
}

// NewServiceAdapter wraps router as a service.Service.
func NewServiceAdapter(router *Router) *ServiceAdapter {
	return &ServiceAdapter{router: router}
}

func (a *ServiceAdapter) OnReceive(bpv7.Bundle) {}

// OnStatusNotify dispatches to "/sources/{source}/status" so a Handler
// registered for that pattern receives every status event for sources
// this adapter is registered under in the service.Registry. The source
// EID is path-escaped since dtn-scheme EIDs carry their own "/" segments,
// which would otherwise split across the single {source} path variable.
func (a *ServiceAdapter) OnStatusNotify(id bpv7.BundleID, kind service.StatusKind, reason admin.StatusReportReason, timestamp bpv7.DtnTime) {
	path := fmt.Sprintf("/sources/%s/status", url.PathEscape(id.SourceNode.String()))
	a.router.Dispatch(path, id, kind, reason, timestamp)
}
