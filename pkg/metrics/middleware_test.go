// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMiddleware_RecordsRequest(t *testing.T) {
	Enable()

	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("PUT", "201"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/x", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("PUT", "201")))
}

func TestHTTPMiddleware_DefaultsTo200(t *testing.T) {
	Enable()

	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok")) // implicit 200
	}))

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "200"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "200")))
}

func TestCeremonyMiddleware(t *testing.T) {
	Enable()

	tests := []struct {
		name       string
		statusCode int
		status     string
	}{
		{name: "success", statusCode: http.StatusOK, status: StatusSuccess},
		{name: "client error", statusCode: http.StatusBadRequest, status: StatusError},
		{name: "server error", statusCode: http.StatusInternalServerError, status: StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := CeremonyMiddleware(CeremonyRegistration)(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.statusCode)
				}))

			before := testutil.ToFloat64(CeremoniesTotal.WithLabelValues(CeremonyRegistration, tt.status))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))

			assert.Equal(t, before+1, testutil.ToFloat64(CeremoniesTotal.WithLabelValues(CeremonyRegistration, tt.status)))
		})
	}
}

func TestChallengeMiddleware(t *testing.T) {
	Enable()

	newHandler := func(code int) http.Handler {
		return ChallengeMiddleware(CeremonyAuthentication)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
			}))
	}

	before := testutil.ToFloat64(ChallengesIssuedTotal.WithLabelValues(CeremonyAuthentication))

	rec := httptest.NewRecorder()
	newHandler(http.StatusOK).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(ChallengesIssuedTotal.WithLabelValues(CeremonyAuthentication)))

	// Failed issuance does not count
	rec = httptest.NewRecorder()
	newHandler(http.StatusNotFound).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(ChallengesIssuedTotal.WithLabelValues(CeremonyAuthentication)))
}

func TestHTTPMiddleware_DisabledSkipsRecording(t *testing.T) {
	Enable()
	t.Cleanup(Enable)
	Disable()

	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/x", nil))

	assert.Equal(t, 0.0, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("DELETE", "418")))
}
