package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/cookies"
	"github.com/dmitrijs2005/gophauth/internal/server/credentials"
	"github.com/dmitrijs2005/gophauth/internal/server/federation"
	"github.com/dmitrijs2005/gophauth/internal/server/mailer"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/dmitrijs2005/gophauth/internal/server/tokens"
	"github.com/dmitrijs2005/gophauth/internal/server/workpool"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	aliceJSON     = `{"name":"Alice","email":"alice@example.com","password":"Correct-Horse-9"}`
	aliceLogin    = `{"email":"alice@example.com","password":"Correct-Horse-9"}`
	alicePassword = "Correct-Horse-9"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (m *captureMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) last() mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

type testServer struct {
	router *gin.Engine
	store  *repomanager.MemoryStore
	codec  *cookies.Codec
	mail   *captureMailer
}

func newTestServer(t *testing.T, provider *federation.Provider) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hasher, err := credentials.NewHasher([]byte("0123456789abcdef-pepper"),
		credentials.Params{Memory: 64, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)

	codec, err := cookies.NewCodec([]byte("abcdefghijklmnopqrstuvwxyz012345"), 15*time.Minute, 30*24*time.Hour)
	require.NoError(t, err)

	store := repomanager.NewMemoryStore()
	mail := &captureMailer{}
	svc := services.NewSessionService(services.SessionDeps{
		Store:    store,
		Hasher:   hasher,
		Issuer:   tokens.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), "gophauth", "gophauth-clients", 15*time.Minute),
		Mailer:   mail,
		Pool:     workpool.New(4),
		Provider: provider,
		BaseURL:  "http://auth.test",
		Logger:   logging.Nop(),
	})

	return &testServer{
		router: NewRouter(NewHandlers(svc, codec, logging.Nop())),
		store:  store,
		codec:  codec,
		mail:   mail,
	}
}

func (s *testServer) do(method, target, contentType, body string, cks ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, ck := range cks {
		req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) postJSON(target, body string, cks ...*http.Cookie) *httptest.ResponseRecorder {
	return s.do(http.MethodPost, target, "application/json", body, cks...)
}

func cookieNamed(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, ck := range w.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestSignup_CreatedThenConflict(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.postJSON("/auth/signup", aliceJSON)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = s.postJSON("/auth/signup", aliceJSON)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "email is taken", errorBody(t, w))

	assert.Equal(t, 1, s.store.Len())
}

func TestSignup_FormBody(t *testing.T) {
	s := newTestServer(t, nil)

	form := url.Values{"name": {"Alice"}, "email": {"alice@example.com"}, "password": {alicePassword}}
	w := s.do(http.MethodPost, "/auth/signup", "application/x-www-form-urlencoded", form.Encode())
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, s.store.Len())
}

func TestSignup_Rejections(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.postJSON("/auth/signup", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.postJSON("/auth/signup", `{"name":"","email":"nope","password":"short"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body struct {
		Errors map[string][]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Errors, "name")
	assert.Contains(t, body.Errors, "email")
	assert.Contains(t, body.Errors["password"], "must contain at least 8 characters")

	assert.Equal(t, 0, s.store.Len())
}

func TestSignup_Concurrent(t *testing.T) {
	s := newTestServer(t, nil)

	codes := make([]int, 2)
	var wg sync.WaitGroup
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = s.postJSON("/auth/signup", aliceJSON).Code
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{http.StatusCreated, http.StatusConflict}, codes)
	assert.Equal(t, 1, s.store.Len())
}

func TestLogin_WrongPasswordSetsNoCookies(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, s.postJSON("/auth/signup", aliceJSON).Code)

	w := s.postJSON("/auth/login", `{"email":"alice@example.com","password":"Wrong-Horse-9"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid login or password", errorBody(t, w))
	assert.Empty(t, w.Result().Cookies())

	w = s.postJSON("/auth/login", `{"email":"nobody@example.com","password":"Correct-Horse-9"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, w.Result().Cookies())
}

func TestLogin_ThenRefreshKeepsRefreshSecret(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, s.postJSON("/auth/signup", aliceJSON).Code)

	w := s.postJSON("/auth/login", aliceLogin)
	require.Equal(t, http.StatusOK, w.Code)

	access := cookieNamed(w, cookies.AccessTokenName)
	refresh := cookieNamed(w, cookies.RefreshTokenName)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.True(t, access.HttpOnly)
	assert.True(t, refresh.Secure)
	assert.Equal(t, cookies.RefreshPath, refresh.Path)

	secret, ok := s.codec.DecodeValue(cookies.RefreshTokenName, refresh.Value)
	require.True(t, ok)
	assert.NotContains(t, refresh.Value, secret)

	w = s.postJSON("/auth/refresh", "", refresh)
	require.Equal(t, http.StatusOK, w.Code)

	again := cookieNamed(w, cookies.RefreshTokenName)
	require.NotNil(t, again)
	got, ok := s.codec.DecodeValue(cookies.RefreshTokenName, again.Value)
	require.True(t, ok)
	assert.Equal(t, secret, got)
	assert.NotNil(t, cookieNamed(w, cookies.AccessTokenName))
}

func TestRefresh_Rejections(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.postJSON("/auth/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing refresh token", errorBody(t, w))

	w = s.postJSON("/auth/refresh", "", &http.Cookie{Name: cookies.RefreshTokenName, Value: "tampered"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid refresh token", errorBody(t, w))

	forged, err := s.codec.RefreshCookie("never-issued")
	require.NoError(t, err)
	w = s.postJSON("/auth/refresh", "", forged)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid refresh token", errorBody(t, w))
}

func TestChangePassword(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, s.postJSON("/auth/signup", aliceJSON).Code)

	w := s.postJSON("/auth/change_password", `{"current_password":"Correct-Horse-9","new_password":"Battery-Staple-7"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing access token", errorBody(t, w))

	login := s.postJSON("/auth/login", aliceLogin)
	require.Equal(t, http.StatusOK, login.Code)
	access := cookieNamed(login, cookies.AccessTokenName)

	w = s.postJSON("/auth/change_password", `{"current_password":"Wrong-Horse-9","new_password":"Battery-Staple-7"}`, access)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid password", errorBody(t, w))

	w = s.postJSON("/auth/change_password", `{"current_password":"Correct-Horse-9","new_password":"weak"}`, access)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.postJSON("/auth/change_password", `{"current_password":"Correct-Horse-9","new_password":"Battery-Staple-7"}`, access)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusUnauthorized, s.postJSON("/auth/login", aliceLogin).Code)
	assert.Equal(t, http.StatusOK,
		s.postJSON("/auth/login", `{"email":"alice@example.com","password":"Battery-Staple-7"}`).Code)
}

func TestProtectedHealthCheck(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health_check", "", "").Code)

	w := s.do(http.MethodGet, "/health_check/protected", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/health_check/protected", "", "",
		&http.Cookie{Name: cookies.AccessTokenName, Value: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid access token", errorBody(t, w))

	require.Equal(t, http.StatusCreated, s.postJSON("/auth/signup", aliceJSON).Code)
	login := s.postJSON("/auth/login", aliceLogin)
	require.Equal(t, http.StatusOK, login.Code)

	w = s.do(http.MethodGet, "/health_check/protected", "", "", cookieNamed(login, cookies.AccessTokenName))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVerifyEmail(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, s.postJSON("/auth/signup", aliceJSON).Code)

	fields := strings.Fields(s.mail.last().TextBody)
	link, err := url.Parse(fields[len(fields)-1])
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/auth/verify?token=nope", "", "").Code)

	w := s.do(http.MethodGet, link.RequestURI(), "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, link.RequestURI(), "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "unknown verification token", errorBody(t, w))
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodGet, "/health_check", "", "")
	assert.NotEmpty(t, w.Header().Get(headerRequestID))

	req := httptest.NewRequest(http.MethodGet, "/health_check", nil)
	req.Header.Set(headerRequestID, "rid-1")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, "rid-1", rec.Header().Get(headerRequestID))
}

func newFakeProvider(t *testing.T, profile map[string]any) *federation.Provider {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "idp-token", "token_type": "Bearer"})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(profile)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p, err := federation.New(federation.Google, federation.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		BaseURL:      "http://auth.test",
		Endpoint: &oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		ProfileURL: srv.URL + "/userinfo",
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return p
}

func TestGoogle_Disabled(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/auth/google", "", "").Code)
}

func TestGoogle_RoundTrip(t *testing.T) {
	s := newTestServer(t, newFakeProvider(t, map[string]any{
		"name": "Bob", "email": "bob@example.com", "verified_email": true,
	}))

	w := s.do(http.MethodGet, "/auth/google", "", "")
	require.Equal(t, http.StatusFound, w.Code)

	stateCookie := cookieNamed(w, cookies.OAuthStateName)
	require.NotNil(t, stateCookie)
	assert.Equal(t, cookies.CallbackPath, stateCookie.Path)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	w = s.do(http.MethodGet, "/auth/google/callback?code=c&state=forged", "", "", stateCookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/auth/google/callback?code=c&state="+url.QueryEscape(state), "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/auth/google/callback?code=c&state="+url.QueryEscape(state), "", "", stateCookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, cookieNamed(w, cookies.AccessTokenName))
	assert.NotNil(t, cookieNamed(w, cookies.RefreshTokenName))
	assert.Equal(t, 1, s.store.Len())
}
