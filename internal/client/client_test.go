package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"todohive/internal/model"

	"github.com/stretchr/testify/require"
)

func setupSession(t *testing.T) *SessionStore {
	t.Helper()
	store, err := OpenSessionStore(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSessionStore_TokenRoundTrip(t *testing.T) {
	store := setupSession(t)
	ctx := context.Background()

	token, err := store.Token(ctx)
	require.NoError(t, err)
	require.Empty(t, token)

	require.NoError(t, store.SetToken(ctx, "jwt-abc"))
	token, err = store.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "jwt-abc", token)
}

func TestSessionStore_UserRoundTrip(t *testing.T) {
	store := setupSession(t)
	ctx := context.Background()

	user, err := store.User(ctx)
	require.NoError(t, err)
	require.Nil(t, user)

	require.NoError(t, store.SetUser(ctx, model.PublicUser{ID: 7, Name: "Ann", Email: "ann@example.com"}))
	user, err = store.User(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, uint(7), user.ID)
	require.Equal(t, "ann@example.com", user.Email)
}

func TestSessionStore_ClearRemovesAllKeys(t *testing.T) {
	store := setupSession(t)
	ctx := context.Background()

	require.NoError(t, store.SetToken(ctx, "jwt-abc"))
	require.NoError(t, store.SetUser(ctx, model.PublicUser{ID: 1, Name: "Ann", Email: "ann@example.com"}))
	require.NoError(t, store.SetPendingEmail(ctx, "ann@example.com"))

	require.NoError(t, store.Clear(ctx))

	token, err := store.Token(ctx)
	require.NoError(t, err)
	require.Empty(t, token)
	user, err := store.User(ctx)
	require.NoError(t, err)
	require.Nil(t, user)
	pending, err := store.PendingEmail(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestLogoutClearsPendingEmail(t *testing.T) {
	store := setupSession(t)
	ctx := context.Background()

	require.NoError(t, store.SetToken(ctx, "jwt-abc"))
	require.NoError(t, store.SetPendingEmail(ctx, "ann@example.com"))

	c := New("http://127.0.0.1:0", store)
	require.NoError(t, c.Logout(ctx))

	token, err := store.Token(ctx)
	require.NoError(t, err)
	require.Empty(t, token)
	pending, err := store.PendingEmail(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestRegister_StoresPendingEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/auth/register", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"message": "User registered. Verification OTP sent to email.",
			"token":   "jwt-abc",
			"email":   "ann@example.com",
		})
	}))
	defer srv.Close()

	store := setupSession(t)
	c := New(srv.URL, store)
	ctx := context.Background()

	result, err := c.Register(ctx, "Ann", "ann@example.com", "secret1")
	require.NoError(t, err)
	require.Equal(t, "ann@example.com", result.Email)

	pending, err := store.PendingEmail(ctx)
	require.NoError(t, err)
	require.Equal(t, "ann@example.com", pending)
}

func TestVerify_ClearsPendingEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/verify", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"message": "Email verified successfully"})
	}))
	defer srv.Close()

	store := setupSession(t)
	ctx := context.Background()
	require.NoError(t, store.SetPendingEmail(ctx, "ann@example.com"))

	c := New(srv.URL, store)
	msg, err := c.Verify(ctx, "ann@example.com", "123456")
	require.NoError(t, err)
	require.Equal(t, "Email verified successfully", msg)

	pending, err := store.PendingEmail(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestLogin_PersistsSessionAndSendsBearer(t *testing.T) {
	var seenAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			json.NewEncoder(w).Encode(map[string]any{
				"token": "jwt-abc",
				"user":  model.PublicUser{ID: 7, Name: "Ann", Email: "ann@example.com"},
			})
		case "/api/todos":
			seenAuth.Store(r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]any{"data": []Todo{}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	store := setupSession(t)
	c := New(srv.URL, store)
	ctx := context.Background()
	require.NoError(t, store.SetPendingEmail(ctx, "ann@example.com"))

	user, err := c.Login(ctx, "ann@example.com", "secret1")
	require.NoError(t, err)
	require.Equal(t, "Ann", user.Name)

	token, err := store.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "jwt-abc", token)

	// 登录成功后没有待验证状态可言
	pending, err := store.PendingEmail(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)

	_, err = c.Todos(ctx)
	require.NoError(t, err)
	require.Equal(t, "Bearer jwt-abc", seenAuth.Load())
}

func TestUnauthorized_PurgesLocalSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "Invalid or expired token"})
	}))
	defer srv.Close()

	store := setupSession(t)
	ctx := context.Background()
	require.NoError(t, store.SetToken(ctx, "stale-jwt"))
	require.NoError(t, store.SetUser(ctx, model.PublicUser{ID: 7, Name: "Ann", Email: "ann@example.com"}))

	c := New(srv.URL, store)
	_, err := c.Todos(ctx)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Equal(t, "Session expired. Please log in again.", apiErr.Message)

	token, err := store.Token(ctx)
	require.NoError(t, err)
	require.Empty(t, token)
	user, err := store.User(ctx)
	require.NoError(t, err)
	require.Nil(t, user)
}

func TestGetRetriesServerErrorsButNotClientErrors(t *testing.T) {
	var calls500, calls409 int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/health":
			atomic.AddInt32(&calls500, 1)
			w.WriteHeader(http.StatusInternalServerError)
		default:
			atomic.AddInt32(&calls409, 1)
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"error": "Email already registered"})
		}
	}))
	defer srv.Close()

	store := setupSession(t)
	c := New(srv.URL, store)
	ctx := context.Background()

	_, err := c.Health(ctx)
	require.Error(t, err)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls500), "GET should retry on 5xx")

	_, err = c.Register(ctx, "Ann", "ann@example.com", "secret1")
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls409), "POST must not retry")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "An account with this email already exists.", apiErr.Message)
}

func TestKnownErrorsMappedUnknownPassThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "Invalid credentials"})
		default:
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "create user failed"})
		}
	}))
	defer srv.Close()

	store := setupSession(t)
	c := New(srv.URL, store)
	ctx := context.Background()

	_, err := c.Login(ctx, "ann@example.com", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "The email or password you entered is incorrect.", apiErr.Message)

	_, err = c.Register(ctx, "Ann", "ann@example.com", "secret1")
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "create user failed", apiErr.Message)
}

func TestTooManyRequestsMessageIncludesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{"error": "too many requests", "retry_after": 42})
	}))
	defer srv.Close()

	store := setupSession(t)
	c := New(srv.URL, store)

	_, err := c.ResendVerification(context.Background(), "ann@example.com")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	require.Equal(t, "Too many requests. Try again in 42 seconds.", apiErr.Message)
}

func TestAuthedRequestWithoutLogin(t *testing.T) {
	store := setupSession(t)
	c := New("http://127.0.0.1:0", store)

	_, err := c.Todos(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "Not logged in. Please log in first.", apiErr.Message)
}
