package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExtractTokenFromHeader(t *testing.T) {
	tests := []struct {
		name        string
		authHeader  string
		expectedErr bool
		errContains string
		wantToken   string
	}{
		{
			name:        "empty header",
			authHeader:  "",
			expectedErr: true,
			errContains: "authorization header is required",
		},
		{
			name:        "wrong prefix",
			authHeader:  "Basic token123",
			expectedErr: true,
			errContains: "must be Bearer token",
		},
		{
			name:        "bearer only no token",
			authHeader:  "Bearer",
			expectedErr: true,
			errContains: "must be Bearer token",
		},
		{
			name:       "valid bearer token",
			authHeader: "Bearer mytoken123",
			wantToken:  "mytoken123",
		},
		{
			name:       "bearer mixed case",
			authHeader: "BEARER mytoken789",
			wantToken:  "mytoken789",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := ExtractTokenFromHeader(tt.authHeader)
			if tt.expectedErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				assert.Empty(t, token)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantToken, token)
		})
	}
}

func TestClaimsFromToken(t *testing.T) {
	c := claimsFromToken("u1", map[string]interface{}{
		"email":          "a@b.c",
		"email_verified": true,
		"name":           "Ada",
	})
	assert.Equal(t, &UserClaims{UID: "u1", Email: "a@b.c", DisplayName: "Ada", Verified: true}, c)
	assert.Equal(t, &UserClaims{UID: "u2"}, claimsFromToken("u2", nil))
}

type fakeVerifier map[string]string

func (f fakeVerifier) VerifyToken(_ context.Context, token string) (*UserClaims, error) {
	uid, ok := f[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return &UserClaims{UID: uid}, nil
}

// whoami echoes the authenticated user ID.
var whoami = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	uid, ok := GetUserID(r.Context())
	if !ok {
		uid = "anonymous"
	}
	_, _ = w.Write([]byte(uid))
})

func serve(h http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireToken(t *testing.T) {
	raw, hash, err := GenerateServiceToken()
	require.NoError(t, err)
	h := Chain(whoami,
		DebugImpersonation(false),
		RequireToken(fakeVerifier{"good": "u1"}, NewServiceTokens([]string{hash}), zap.NewNop()),
	)

	tests := []struct {
		name    string
		path    string
		headers map[string]string
		status  int
		body    string
	}{
		{name: "public path", path: "/health", status: http.StatusOK, body: "anonymous"},
		{name: "missing header", path: "/v1/x", status: http.StatusUnauthorized},
		{name: "bad token", path: "/v1/x", headers: map[string]string{"Authorization": "Bearer nope"}, status: http.StatusUnauthorized},
		{name: "user token", path: "/v1/x", headers: map[string]string{"Authorization": "Bearer good"}, status: http.StatusOK, body: "u1"},
		{name: "service token", path: "/v1/x", headers: map[string]string{"Authorization": "Bearer " + raw}, status: http.StatusOK, body: "service:" + hash[:8]},
		{name: "unknown service token", path: "/v1/x", headers: map[string]string{"Authorization": "Bearer " + ServiceTokenPrefix + "00"}, status: http.StatusUnauthorized},
		{name: "impersonation disabled", path: "/v1/x", headers: map[string]string{"X-Debug-Impersonate-User": "eve"}, status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.path, tt.headers)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.body, rec.Body.String())
				return
			}
			var body ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "UNAUTHENTICATED", body.Error.Code)
		})
	}
}

func TestDebugImpersonationAndLocalDev(t *testing.T) {
	h := Chain(whoami, DebugImpersonation(true), LocalDev())

	assert.Equal(t, LocalDevUserID, serve(h, "/v1/x", nil).Body.String())
	assert.Equal(t, "eve", serve(h, "/v1/x", map[string]string{"X-Debug-Impersonate-User": "eve"}).Body.String())
	assert.Equal(t, "anonymous", serve(h, "/health", nil).Body.String())

	strict := Chain(whoami,
		DebugImpersonation(true),
		RequireToken(fakeVerifier{}, nil, zap.NewNop()),
	)
	assert.Equal(t, "eve", serve(strict, "/v1/x", map[string]string{"X-Debug-Impersonate-User": "eve"}).Body.String())
}

func TestRequireUserAccess(t *testing.T) {
	_, err := RequireUserAccess(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	ctx := WithUserClaims(context.Background(), &UserClaims{UID: "u1"})
	_, err = RequireUserAccess(ctx, "u1")
	assert.NoError(t, err)
	_, err = RequireUserAccess(ctx, "u2")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.ErrorIs(t, RequireService(ctx), ErrPermissionDenied)

	svc := WithUserClaims(context.Background(), &UserClaims{UID: "service:x", Service: true})
	_, err = RequireUserAccess(svc, "u2")
	assert.NoError(t, err)
	assert.NoError(t, RequireService(svc))
}

func TestServiceTokens(t *testing.T) {
	raw, hash, err := GenerateServiceToken()
	require.NoError(t, err)
	assert.True(t, IsServiceToken(raw))
	assert.Len(t, raw, len(ServiceTokenPrefix)+64)
	assert.Equal(t, hash, HashServiceToken(raw))

	tokens := NewServiceTokens([]string{" " + hash + " ", ""})
	claims, err := tokens.VerifyToken(context.Background(), raw)
	require.NoError(t, err)
	assert.True(t, claims.Service)

	_, err = tokens.VerifyToken(context.Background(), "not-a-service-token")
	assert.Error(t, err)
}
