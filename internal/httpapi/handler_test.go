package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventgate/internal/attendance"
	"eventgate/internal/auth"
	"eventgate/internal/httpapi"
	"eventgate/internal/qrpass"
	"eventgate/internal/registration"
	"eventgate/internal/staff"
	"eventgate/internal/testutil"
)

type env struct {
	router   *gin.Engine
	regs     *testutil.Registrations
	notifier *testutil.Notifier
	tokens   *auth.Tokens
	token    string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	regs := testutil.NewRegistrations()
	notifier := &testutil.Notifier{}
	staffStore := testutil.NewStaff("lead@example.edu")
	verifier := testutil.Verifier{Identities: map[string]staff.Identity{
		"good-lead":     {Email: "lead@example.edu", Name: "Team Lead"},
		"good-outsider": {Email: "someone@gmail.com", Name: "Some One"},
	}}
	tokens := auth.NewTokens("test-secret", "eventgate", 24*time.Hour)

	h := httpapi.NewHandler(
		registration.NewService(regs, notifier, zerolog.Nop()),
		attendance.NewService(regs, zerolog.Nop()),
		staff.NewGate(verifier, staffStore, tokens, zerolog.Nop()),
		false,
		zerolog.Nop(),
	)
	router := httpapi.NewRouter(h, httpapi.RouterConfig{
		Tokens: tokens,
		Health: map[string]httpapi.HealthCheck{"db": func(context.Context) bool { return true }},
		Log:    zerolog.Nop(),
	})

	token, _, err := tokens.Issue(1, "lead@example.edu", "Team Lead")
	require.NoError(t, err)
	return &env{router: router, regs: regs, notifier: notifier, tokens: tokens, token: token}
}

func (e *env) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func validForm(email string) map[string]string {
	return map[string]string{
		"firstName": "Asha",
		"lastName":  "Rao",
		"email":     email,
		"phone":     "9876543210",
		"year":      "2",
		"branch":    "CSE",
	}
}

func (e *env) register(t *testing.T, email string) int64 {
	t.Helper()
	w := e.do(http.MethodPost, "/api/register", validForm(email), "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return int64(decode(t, w)["userId"].(float64))
}

func TestRoot(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodGet, "/", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, httpapi.ServiceName, body["service"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestHealthzAndUnknownRoute(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["db"])

	w = e.do(http.MethodGet, "/api/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Endpoint not found", decode(t, w)["error"])
}

func TestRegister(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/register", validForm("Asha@Example.com "), "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Registration successful", body["message"])
	assert.Equal(t, float64(1), body["userId"])
	require.Len(t, e.notifier.Sent, 1)
	assert.Equal(t, "asha@example.com", e.notifier.Sent[0].Email)

	w = e.do(http.MethodPost, "/api/register", validForm("asha@example.com"), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "This email is already registered for the event", decode(t, w)["error"])
	assert.Equal(t, 1, e.regs.Count())
}

func TestRegisterValidation(t *testing.T) {
	e := newEnv(t)

	missing := validForm("a@b.com")
	delete(missing, "branch")
	w := e.do(http.MethodPost, "/api/register", missing, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "All fields are required", decode(t, w)["error"])

	w = e.do(http.MethodPost, "/api/register", validForm("not-an-email"), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Please enter a valid email address", decode(t, w)["error"])

	w = e.do(http.MethodPost, "/api/register", "{", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, e.regs.Count())
}

func TestRegisterMailFailureKeepsRow(t *testing.T) {
	e := newEnv(t)
	e.notifier.Err = errors.New("smtp down")

	w := e.do(http.MethodPost, "/api/register", validForm("a@b.com"), "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Registration failed. Please try again.", body["error"])
	assert.Equal(t, "Internal server error", body["details"])
	assert.Equal(t, 1, e.regs.Count())
}

func TestGetUser(t *testing.T) {
	e := newEnv(t)
	id := e.register(t, "a@b.com")

	w := e.do(http.MethodGet, fmt.Sprintf("/api/user/%d", id), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "a@b.com", body["email"])
	assert.Equal(t, false, body["attended"])

	w = e.do(http.MethodGet, "/api/user/999", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", decode(t, w)["error"])

	w = e.do(http.MethodGet, "/api/user/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/login", map[string]string{"credential": "good-lead"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Login successful", body["message"])
	token, _ := body["token"].(string)
	claims, err := e.tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "lead@example.edu", claims.Email)

	w = e.do(http.MethodGet, "/api/me", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode(t, w)["user"].(map[string]any)
	assert.Equal(t, "Team Lead", me["name"])

	w = e.do(http.MethodPost, "/api/login", map[string]string{"credential": "good-outsider"}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Access denied. You are not part of the ISTE team.", decode(t, w)["error"])

	w = e.do(http.MethodPost, "/api/login", map[string]string{"credential": "forged"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid Google token", decode(t, w)["error"])

	w = e.do(http.MethodPost, "/api/login", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Google credential is required", decode(t, w)["error"])
}

func TestStaffRoutesRequireToken(t *testing.T) {
	e := newEnv(t)
	routes := []struct{ method, path string }{
		{http.MethodPost, "/api/update-attendance"},
		{http.MethodPost, "/api/scan-qr"},
		{http.MethodGet, "/api/registrations"},
		{http.MethodGet, "/api/stats"},
		{http.MethodGet, "/api/me"},
	}
	for _, rt := range routes {
		w := e.do(rt.method, rt.path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, rt.path)
		assert.Equal(t, "Access token required", decode(t, w)["error"])

		w = e.do(rt.method, rt.path, nil, "garbage")
		assert.Equal(t, http.StatusForbidden, w.Code, rt.path)
		assert.Equal(t, "Invalid or expired token", decode(t, w)["error"])
	}
}

func TestUpdateAttendance(t *testing.T) {
	e := newEnv(t)
	id := e.register(t, "a@b.com")

	w := e.do(http.MethodPost, "/api/update-attendance", fmt.Sprintf(`{"userId":"%d"}`, id), e.token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	user := decode(t, w)["user"].(map[string]any)
	assert.Equal(t, true, user["attended"])
	assert.Equal(t, "lead@example.edu", user["checked_in_by"])

	w = e.do(http.MethodPost, "/api/update-attendance", map[string]int64{"userId": id}, e.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Attendance already marked for this user", body["error"])
	assert.Equal(t, float64(id), body["user"].(map[string]any)["id"])

	w = e.do(http.MethodPost, "/api/update-attendance", map[string]int64{"userId": 999}, e.token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodPost, "/api/update-attendance", `{}`, e.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "User ID is required", decode(t, w)["error"])
}

func TestScanQR(t *testing.T) {
	e := newEnv(t)
	id := e.register(t, "a@b.com")
	payload, err := qrpass.New(id, "Asha Rao", "a@b.com", time.Now()).Encode()
	require.NoError(t, err)

	w := e.do(http.MethodPost, "/api/scan-qr", map[string]string{"qrData": payload}, e.token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Attendance marked successfully", body["message"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "Asha Rao", user["name"])
	assert.Equal(t, true, user["attended"])

	w = e.do(http.MethodPost, "/api/scan-qr", map[string]string{"qrData": fmt.Sprint(id)}, e.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body = decode(t, w)
	assert.Equal(t, "Attendance already marked for this user", body["error"])
	assert.Equal(t, "Asha Rao", body["user"].(map[string]any)["name"])

	w = e.do(http.MethodPost, "/api/scan-qr", map[string]string{"qrData": "hello"}, e.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid QR code format", decode(t, w)["error"])

	w = e.do(http.MethodPost, "/api/scan-qr", map[string]string{"qrData": ""}, e.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "QR code data is required", decode(t, w)["error"])
}

func TestRegistrationsAndStats(t *testing.T) {
	e := newEnv(t)
	first := e.register(t, "asha@example.com")
	e.register(t, "ravi@example.com")
	e.register(t, "meena@example.com")

	w := e.do(http.MethodGet, "/api/registrations?page=1&limit=2", nil, e.token)
	require.Equal(t, http.StatusOK, w.Code)
	var page registration.Page
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Registrations, 2)
	assert.Equal(t, "meena@example.com", page.Registrations[0].Email, "newest first")

	w = e.do(http.MethodGet, "/api/registrations?search=RAVI", nil, e.token)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Registrations, 1)
	assert.Equal(t, "ravi@example.com", page.Registrations[0].Email)

	e.do(http.MethodPost, "/api/update-attendance", map[string]int64{"userId": first}, e.token)

	w = e.do(http.MethodGet, "/api/stats", nil, e.token)
	require.Equal(t, http.StatusOK, w.Code)
	var st registration.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, registration.Stats{
		TotalRegistrations:   3,
		TotalAttended:        1,
		TotalNotAttended:     2,
		AttendancePercentage: 33.33,
	}, st)
}

func TestInternalErrorDetails(t *testing.T) {
	e := newEnv(t)
	e.regs.Err = errors.New("connection refused")

	w := e.do(http.MethodGet, "/api/stats", nil, e.token)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Failed to get statistics", body["error"])
	assert.Equal(t, "Internal server error", body["details"], "causes stay hidden outside development")
}
