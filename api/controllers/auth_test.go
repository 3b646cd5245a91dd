package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lumasites/lumasites-backend/internal/adminauth"
	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
)

type stubAuthService struct {
	login   *adminauth.LoginResponse
	refresh *adminauth.LoginResponse
	err     error

	loggedOut []string
}

func (s *stubAuthService) Login(ctx context.Context, req adminauth.LoginRequest) (*adminauth.LoginResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.login, nil
}

func (s *stubAuthService) Refresh(ctx context.Context, accessToken, refreshToken string) (*adminauth.LoginResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.refresh, nil
}

func (s *stubAuthService) Logout(ctx context.Context, accessToken string) error {
	s.loggedOut = append(s.loggedOut, accessToken)
	return s.err
}

func TestAuthLoginSuccess(t *testing.T) {
	t.Parallel()
	svc := &stubAuthService{login: &adminauth.LoginResponse{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		User:         adminauth.AccountView{SiteKey: "acme", Email: "owner@acme.test", Role: "owner"},
	}}
	handler := AuthLogin(svc, nil)

	body := []byte(`{"siteKey":"acme","email":"owner@acme.test","password":"Secret#123"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	var envelope struct {
		Data adminauth.LoginResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.AccessToken != "access-token" {
		t.Fatalf("expected access token in payload got %+v", envelope.Data)
	}
	if envelope.Data.User.Email != "owner@acme.test" {
		t.Fatalf("expected user in payload got %+v", envelope.Data.User)
	}
}

func TestAuthLoginInvalidPayload(t *testing.T) {
	t.Parallel()
	handler := AuthLogin(&stubAuthService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader([]byte(`{"email":"not-an-email"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAuthLoginBadCredentials(t *testing.T) {
	t.Parallel()
	svc := &stubAuthService{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")}
	handler := AuthLogin(svc, nil)

	body := []byte(`{"siteKey":"acme","email":"owner@acme.test","password":"WrongPass1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthLogoutRevokes(t *testing.T) {
	t.Parallel()
	svc := &stubAuthService{}
	handler := AuthLogout(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", bytes.NewReader([]byte(`{"accessToken":"token-1"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if len(svc.loggedOut) != 1 || svc.loggedOut[0] != "token-1" {
		t.Fatalf("expected logout with token-1, got %v", svc.loggedOut)
	}
}
