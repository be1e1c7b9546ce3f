// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountChi mounts the passkey routes on a chi router.
//
// Example:
//
//	handler := passkeyhttp.NewHandler(svc)
//	r.Route("/api/v1/passkey", func(r chi.Router) {
//	    passkeyhttp.MountChi(r, handler)
//	})
func MountChi(r chi.Router, h *Handler) {
	r.Post("/registration/challenge", h.RegistrationChallenge)
	r.Post("/registration/complete", h.CompleteRegistration)
	r.Post("/authentication/challenge", h.AuthenticationChallenge)
	r.Post("/authentication/complete", h.CompleteAuthentication)
}

// MountStdlib mounts the passkey routes on a stdlib http.ServeMux.
// The prefix should not include a trailing slash. Method checking happens
// inside the handlers.
//
// Example:
//
//	handler := passkeyhttp.NewHandler(svc)
//	passkeyhttp.MountStdlib(mux, "/api/v1/passkey", handler)
func MountStdlib(mux *http.ServeMux, prefix string, h *Handler) {
	mux.HandleFunc(prefix+"/registration/challenge", h.RegistrationChallenge)
	mux.HandleFunc(prefix+"/registration/complete", h.CompleteRegistration)
	mux.HandleFunc(prefix+"/authentication/challenge", h.AuthenticationChallenge)
	mux.HandleFunc(prefix+"/authentication/complete", h.CompleteAuthentication)
}

// RouteEntry represents a single route with its method, path, and handler.
type RouteEntry struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Routes returns the route table for manual mounting on routers this
// package does not support directly.
func (h *Handler) Routes() []RouteEntry {
	return []RouteEntry{
		{Method: "POST", Path: "/registration/challenge", Handler: h.RegistrationChallenge},
		{Method: "POST", Path: "/registration/complete", Handler: h.CompleteRegistration},
		{Method: "POST", Path: "/authentication/challenge", Handler: h.AuthenticationChallenge},
		{Method: "POST", Path: "/authentication/complete", Handler: h.CompleteAuthentication},
	}
}
