package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeGitHub serves the token endpoint and the /user API.
func fakeGitHub(t *testing.T, userJSON string, userStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"bad_verification_code"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"gho_test","token_type":"bearer"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(userStatus)
		w.Write([]byte(userJSON))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(srv *httptest.Server) *GitHubProvider {
	return newGitHubProvider("client", "secret", "http://localhost/api/callback", oauth2.Endpoint{
		AuthURL:   srv.URL + "/login/oauth/authorize",
		TokenURL:  srv.URL + "/login/oauth/access_token",
		AuthStyle: oauth2.AuthStyleInParams,
	}, srv.URL+"/user")
}

func TestGitHubExchange(t *testing.T) {
	srv := fakeGitHub(t, `{"id":42,"login":"ada","name":"Ada King Lovelace","email":"ada@example.com","avatar_url":"https://avatars/42"}`, http.StatusOK)
	p := newTestProvider(srv)

	id, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)

	assert.Equal(t, "github:42", id.Subject)
	assert.Equal(t, "ada@example.com", id.Email)
	assert.Equal(t, "Ada", id.FirstName)
	assert.Equal(t, "King Lovelace", id.LastName)
	assert.Equal(t, "https://avatars/42", id.ProfileImageURL)
}

func TestGitHubExchange_NoDisplayNameFallsBackToLogin(t *testing.T) {
	srv := fakeGitHub(t, `{"id":7,"login":"octocat"}`, http.StatusOK)

	id, err := newTestProvider(srv).Exchange(context.Background(), "good-code")
	require.NoError(t, err)

	assert.Equal(t, "octocat", id.FirstName)
	assert.Empty(t, id.LastName)
	assert.Empty(t, id.Email)
}

func TestGitHubExchange_BadCode(t *testing.T) {
	srv := fakeGitHub(t, `{}`, http.StatusOK)

	_, err := newTestProvider(srv).Exchange(context.Background(), "bad-code")
	assert.Error(t, err)
}

func TestGitHubExchange_APIError(t *testing.T) {
	srv := fakeGitHub(t, `{"message":"boom"}`, http.StatusInternalServerError)

	_, err := newTestProvider(srv).Exchange(context.Background(), "good-code")
	assert.ErrorContains(t, err, "status 500")
}

func TestGitHubExchange_ZeroID(t *testing.T) {
	srv := fakeGitHub(t, `{"id":0,"login":"ghost"}`, http.StatusOK)

	_, err := newTestProvider(srv).Exchange(context.Background(), "good-code")
	assert.Error(t, err)
}

func TestGitHubAuthURL(t *testing.T) {
	p := NewGitHubProvider("client-id", "secret", "http://localhost:5000/api/callback")

	u, err := url.Parse(p.AuthURL("state-123"))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "http://localhost:5000/api/callback", q.Get("redirect_uri"))
}
