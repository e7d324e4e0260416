package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"pcapi/internal/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mintToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func TestExtractTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := ExtractTokenFromRequest(r)
	assert.ErrorIs(t, err, ErrMissingToken)

	r.Header.Set("Authorization", "Token abc")
	_, err = ExtractTokenFromRequest(r)
	assert.ErrorIs(t, err, ErrMalformed)

	r.Header.Set("Authorization", "bearer abc")
	tok, err := ExtractTokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}

func TestUnverifiedVerifierReadsClaims(t *testing.T) {
	raw := mintToken(t, jwt.MapClaims{
		"sub":          "42",
		"email":        "jeune@example.com",
		"roles":        []string{"BENEFICIARY"},
		"realm_access": map[string]interface{}{"roles": []string{"PRO"}},
	})

	c, err := UnverifiedVerifier{}.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), c.UserID)
	assert.Equal(t, "jeune@example.com", c.Email)
	assert.True(t, c.HasRole(RoleBeneficiary))
	assert.True(t, c.HasRole("pro"))
	assert.False(t, c.HasRole(RoleAdmin))
}

func TestClaimsRequireNumericSubject(t *testing.T) {
	_, err := ClaimsFromMap(map[string]interface{}{"sub": "a-uuid"})
	assert.ErrorIs(t, err, ErrInvalidClaims)

	_, err = ClaimsFromMap(map[string]interface{}{})
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

type stubVerifier struct {
	claims Claims
	err    error
}

func (s stubVerifier) Verify(ctx context.Context, rawToken string) (Claims, error) {
	return s.claims, s.err
}

func TestMiddlewareStoresClaims(t *testing.T) {
	var got Claims
	h := Middleware(stubVerifier{claims: Claims{UserID: 7, Roles: []string{RolePro}}}, logger.Nop())(
		RequireRole(RolePro)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = FromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		})))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer x")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, int64(7), got.UserID)
}

func TestMiddlewareRejects(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		Middleware(stubVerifier{}, logger.Nop())(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bad token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer x")
		w := httptest.NewRecorder()
		Middleware(stubVerifier{err: errors.New("expired")}, logger.Nop())(next).ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing role", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer x")
		w := httptest.NewRecorder()
		Middleware(stubVerifier{claims: Claims{UserID: 1}}, logger.Nop())(RequireRole(RoleAdmin)(next)).ServeHTTP(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestRequireAnyRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	guard := RequireRole(RoleEducational, RoleAdmin)

	for roles, want := range map[string]int{
		RoleEducational: http.StatusOK,
		RoleAdmin:       http.StatusOK,
		RolePro:         http.StatusForbidden,
	} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer x")
		w := httptest.NewRecorder()
		Middleware(stubVerifier{claims: Claims{UserID: 1, Roles: []string{roles}}}, logger.Nop())(guard(next)).ServeHTTP(w, r)
		assert.Equal(t, want, w.Code, roles)
	}
}

func TestWebhookToken(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r := httptest.NewRequest(http.MethodPost, "/webhooks/identity", nil)
	r.Header.Set("X-Webhook-Token", "s3cret")
	w := httptest.NewRecorder()
	WebhookToken("s3cret", logger.Nop())(next).ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	WebhookToken("", logger.Nop())(next).ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r.Header.Set("X-Webhook-Token", "wrong")
	w = httptest.NewRecorder()
	WebhookToken("s3cret", logger.Nop())(next).ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
