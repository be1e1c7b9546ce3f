// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursehub/portal/pkg/passkey"
)

const (
	testRPID   = "localhost"
	testOrigin = "https://localhost"
	testEmail  = "s1234567@coursehub.example.edu"
)

type testServer struct {
	server  *httptest.Server
	handler *Handler
	svc     *passkey.Service
	creds   *passkey.MemoryCredentialStore
	user    passkey.User
}

func newTestServer(t *testing.T, opts ...func(*Handler)) *testServer {
	t.Helper()

	identities := passkey.NewMemoryIdentityStore()
	creds := passkey.NewMemoryCredentialStore()

	svc, err := passkey.NewService(passkey.ServiceParams{
		Config: &passkey.Config{
			RPID:          testRPID,
			RPDisplayName: "CourseHub Test",
			RPOrigins:     []string{testOrigin},
		},
		Identities:  identities,
		Challenges:  passkey.NewMemoryChallengeStore(),
		Credentials: creds,
	})
	require.NoError(t, err)

	handler := NewHandler(svc)
	for _, opt := range opts {
		opt(handler)
	}

	r := chi.NewRouter()
	r.Route("/api/v1/passkey", func(r chi.Router) {
		MountChi(r, handler)
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	user := identities.Add(passkey.User{Email: testEmail, DisplayName: "Test Student"})

	return &testServer{
		server:  server,
		handler: handler,
		svc:     svc,
		creds:   creds,
		user:    user,
	}
}

func (ts *testServer) post(t *testing.T, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(ts.server.URL+"/api/v1/passkey"+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func (ts *testServer) rp() virtualwebauthn.RelyingParty {
	return virtualwebauthn.RelyingParty{
		Name:   "CourseHub Test",
		ID:     testRPID,
		Origin: testOrigin,
	}
}

// registerOverHTTP completes a full registration ceremony through the HTTP
// surface and returns the expected-challenge echo it used.
func (ts *testServer) registerOverHTTP(t *testing.T, authenticator *virtualwebauthn.Authenticator,
	credential *virtualwebauthn.Credential) {
	t.Helper()

	resp, raw := ts.post(t, "/registration/challenge", RegistrationChallengeRequest{
		UserID: ts.user.ID,
		Email:  ts.user.Email,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	attOptions, err := virtualwebauthn.ParseAttestationOptions(string(raw))
	require.NoError(t, err)

	attestation := virtualwebauthn.CreateAttestationResponse(ts.rp(), *authenticator, *credential, *attOptions)

	resp, raw = ts.post(t, "/registration/complete", CompleteRegistrationRequest{
		UserID:              ts.user.ID,
		Email:               ts.user.Email,
		AttestationResponse: json.RawMessage(attestation),
		ExpectedChallenge:   base64.RawURLEncoding.EncodeToString(attOptions.Challenge),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var success SuccessResponse
	require.NoError(t, json.Unmarshal(raw, &success))
	require.True(t, success.Success)

	authenticator.AddCredential(*credential)
}

func decodeError(t *testing.T, raw []byte) ErrorResponse {
	t.Helper()
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &errResp))
	return errResp
}

func TestRegistrationChallenge_Validation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body RegistrationChallengeRequest
	}{
		{name: "missing user id", body: RegistrationChallengeRequest{Email: testEmail}},
		{name: "missing email", body: RegistrationChallengeRequest{UserID: "user-1"}},
		{name: "empty", body: RegistrationChallengeRequest{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := ts.post(t, "/registration/challenge", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, ErrorCodeInvalidRequest, decodeError(t, raw).Error)
		})
	}
}

func TestRegistrationChallenge_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.server.URL + "/api/v1/passkey/registration/challenge")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRegistrationFlow_HTTP(t *testing.T) {
	ts := newTestServer(t)

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	ts.registerOverHTTP(t, &authenticator, &credential)

	creds, err := ts.svc.Credentials(context.Background(), ts.user.ID)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, credential.ID, creds[0].ID)
}

func TestRegistrationFlow_DuplicateCredential(t *testing.T) {
	ts := newTestServer(t)

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	ts.registerOverHTTP(t, &authenticator, &credential)

	// A fresh ceremony re-registering the same credential id.
	resp, raw := ts.post(t, "/registration/challenge", RegistrationChallengeRequest{
		UserID: ts.user.ID,
		Email:  ts.user.Email,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	attOptions, err := virtualwebauthn.ParseAttestationOptions(string(raw))
	require.NoError(t, err)
	attestation := virtualwebauthn.CreateAttestationResponse(ts.rp(), authenticator, credential, *attOptions)

	resp, raw = ts.post(t, "/registration/complete", CompleteRegistrationRequest{
		UserID:              ts.user.ID,
		Email:               ts.user.Email,
		AttestationResponse: json.RawMessage(attestation),
		ExpectedChallenge:   base64.RawURLEncoding.EncodeToString(attOptions.Challenge),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ErrorCodeDuplicateCredential, decodeError(t, raw).Error)
}

func TestCompleteRegistration_MalformedAttestation(t *testing.T) {
	ts := newTestServer(t)

	resp, raw := ts.post(t, "/registration/complete", CompleteRegistrationRequest{
		UserID:              ts.user.ID,
		Email:               ts.user.Email,
		AttestationResponse: json.RawMessage(`{"not":"an attestation"}`),
		ExpectedChallenge:   "Y2hhbGxlbmdl",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ErrorCodeInvalidRequest, decodeError(t, raw).Error)
}

func TestAuthenticationChallenge_UnknownUser(t *testing.T) {
	ts := newTestServer(t)

	resp, raw := ts.post(t, "/authentication/challenge", AuthenticationChallengeRequest{
		Email: "nobody@coursehub.example.edu",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, ErrorCodeUserNotFound, decodeError(t, raw).Error)
}

func TestAuthenticationChallenge_NoCredentials(t *testing.T) {
	ts := newTestServer(t)

	resp, raw := ts.post(t, "/authentication/challenge", AuthenticationChallengeRequest{
		Email: ts.user.Email,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, ErrorCodeNoCredentials, decodeError(t, raw).Error)
}

func TestAuthenticationFlow_HTTP(t *testing.T) {
	ts := newTestServer(t)

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	ts.registerOverHTTP(t, &authenticator, &credential)

	resp, raw := ts.post(t, "/authentication/challenge", AuthenticationChallengeRequest{
		Email: ts.user.Email,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var challengeResp AuthenticationChallengeResponse
	require.NoError(t, json.Unmarshal(raw, &challengeResp))
	assert.Equal(t, ts.user.ID, challengeResp.UserID)
	require.Len(t, challengeResp.PublicKey.AllowedCredentials, 1)

	asrtOptions, err := virtualwebauthn.ParseAssertionOptions(string(raw))
	require.NoError(t, err)

	credential.Counter++
	assertion := virtualwebauthn.CreateAssertionResponse(ts.rp(), authenticator, credential, *asrtOptions)

	resp, raw = ts.post(t, "/authentication/complete", CompleteAuthenticationRequest{
		UserID:            challengeResp.UserID,
		AssertionResponse: json.RawMessage(assertion),
		ExpectedChallenge: base64.RawURLEncoding.EncodeToString(asrtOptions.Challenge),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var success SuccessResponse
	require.NoError(t, json.Unmarshal(raw, &success))
	assert.True(t, success.Success)
	assert.Equal(t, ts.user.ID, success.UserID)
}

func TestCompleteAuthentication_WrongChallenge(t *testing.T) {
	ts := newTestServer(t)

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	ts.registerOverHTTP(t, &authenticator, &credential)

	resp, raw := ts.post(t, "/authentication/challenge", AuthenticationChallengeRequest{
		Email: ts.user.Email,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	asrtOptions, err := virtualwebauthn.ParseAssertionOptions(string(raw))
	require.NoError(t, err)

	credential.Counter++
	assertion := virtualwebauthn.CreateAssertionResponse(ts.rp(), authenticator, credential, *asrtOptions)

	resp, raw = ts.post(t, "/authentication/complete", CompleteAuthenticationRequest{
		UserID:            ts.user.ID,
		AssertionResponse: json.RawMessage(assertion),
		ExpectedChallenge: "bm90LXRoZS1jaGFsbGVuZ2U",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The response says only that verification failed, never which check.
	errResp := decodeError(t, raw)
	assert.Equal(t, ErrorCodeVerificationFailed, errResp.Error)
	assert.Equal(t, "verification failed", errResp.Message)
}

func TestCompleteAuthentication_ReplayedAssertion(t *testing.T) {
	ts := newTestServer(t)

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	ts.registerOverHTTP(t, &authenticator, &credential)

	// Successful login at counter 1.
	resp, raw := ts.post(t, "/authentication/challenge", AuthenticationChallengeRequest{Email: ts.user.Email})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	asrtOptions, err := virtualwebauthn.ParseAssertionOptions(string(raw))
	require.NoError(t, err)
	credential.Counter++
	assertion := virtualwebauthn.CreateAssertionResponse(ts.rp(), authenticator, credential, *asrtOptions)
	resp, _ = ts.post(t, "/authentication/complete", CompleteAuthenticationRequest{
		UserID:            ts.user.ID,
		AssertionResponse: json.RawMessage(assertion),
		ExpectedChallenge: base64.RawURLEncoding.EncodeToString(asrtOptions.Challenge),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A new ceremony whose assertion reports the same counter value is a
	// clone signal and fails generically.
	resp, raw = ts.post(t, "/authentication/challenge", AuthenticationChallengeRequest{Email: ts.user.Email})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	asrtOptions, err = virtualwebauthn.ParseAssertionOptions(string(raw))
	require.NoError(t, err)
	assertion = virtualwebauthn.CreateAssertionResponse(ts.rp(), authenticator, credential, *asrtOptions)
	resp, raw = ts.post(t, "/authentication/complete", CompleteAuthenticationRequest{
		UserID:            ts.user.ID,
		AssertionResponse: json.RawMessage(assertion),
		ExpectedChallenge: base64.RawURLEncoding.EncodeToString(asrtOptions.Challenge),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ErrorCodeVerificationFailed, decodeError(t, raw).Error)
}

type stubBotVerifier struct {
	err    error
	tokens []string
}

func (s *stubBotVerifier) Verify(ctx context.Context, token string) error {
	s.tokens = append(s.tokens, token)
	return s.err
}

func TestVerificationFailureHook(t *testing.T) {
	var (
		mu       sync.Mutex
		ceremony string
		hookErr  error
	)

	ts := newTestServer(t, func(h *Handler) {
		h.WithVerificationFailureHook(func(c string, err error) {
			mu.Lock()
			defer mu.Unlock()
			ceremony = c
			hookErr = err
		})
	})

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	ts.registerOverHTTP(t, &authenticator, &credential)

	resp, raw := ts.post(t, "/authentication/challenge", AuthenticationChallengeRequest{
		Email: ts.user.Email,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	asrtOptions, err := virtualwebauthn.ParseAssertionOptions(string(raw))
	require.NoError(t, err)

	credential.Counter++
	assertion := virtualwebauthn.CreateAssertionResponse(ts.rp(), authenticator, credential, *asrtOptions)

	resp, _ = ts.post(t, "/authentication/complete", CompleteAuthenticationRequest{
		UserID:            ts.user.ID,
		AssertionResponse: json.RawMessage(assertion),
		ExpectedChallenge: "bm90LXRoZS1jaGFsbGVuZ2U",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The hook sees the real error even though the response is generic.
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "authentication", ceremony)
	assert.ErrorIs(t, hookErr, passkey.ErrChallengeMismatch)
}

func TestRegistrationChallenge_BotVerifier(t *testing.T) {
	t.Run("rejected", func(t *testing.T) {
		verifier := &stubBotVerifier{err: errors.New("token invalid")}
		ts := newTestServer(t, func(h *Handler) { h.WithBotVerifier(verifier) })

		resp, raw := ts.post(t, "/registration/challenge", RegistrationChallengeRequest{
			UserID:   ts.user.ID,
			Email:    ts.user.Email,
			BotToken: "bad-token",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, ErrorCodeBotCheckFailed, decodeError(t, raw).Error)
		assert.Equal(t, []string{"bad-token"}, verifier.tokens)
	})

	t.Run("accepted", func(t *testing.T) {
		verifier := &stubBotVerifier{}
		ts := newTestServer(t, func(h *Handler) { h.WithBotVerifier(verifier) })

		resp, _ := ts.post(t, "/registration/challenge", RegistrationChallengeRequest{
			UserID:   ts.user.ID,
			Email:    ts.user.Email,
			BotToken: "good-token",
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

type stubNotifier struct {
	mu     sync.Mutex
	events []string
}

func (s *stubNotifier) CredentialRegistered(ctx context.Context, userID, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, userID+"/"+email)
}

func TestCompleteRegistration_Notifies(t *testing.T) {
	notifier := &stubNotifier{}
	ts := newTestServer(t, func(h *Handler) { h.WithNotifier(notifier) })

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	ts.registerOverHTTP(t, &authenticator, &credential)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.events, 1)
	assert.Equal(t, ts.user.ID+"/"+ts.user.Email, notifier.events[0])
}

func TestMountStdlib(t *testing.T) {
	ts := newTestServer(t)

	mux := http.NewServeMux()
	MountStdlib(mux, "/api/v1/passkey", ts.handler)

	server := httptest.NewServer(mux)
	defer server.Close()

	// Routes are reachable and the handlers enforce POST themselves.
	resp, err := http.Get(server.URL + "/api/v1/passkey/registration/challenge")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	body, err := json.Marshal(map[string]string{"userId": ts.user.ID, "email": testEmail})
	require.NoError(t, err)

	resp, err = http.Post(server.URL+"/api/v1/passkey/registration/challenge",
		"application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoutes_Table(t *testing.T) {
	h := NewHandler(nil)
	routes := h.Routes()
	require.Len(t, routes, 4)
	for _, route := range routes {
		assert.Equal(t, "POST", route.Method)
		assert.NotNil(t, route.Handler)
	}
}
