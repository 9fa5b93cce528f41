package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const testKeyID = "test-key"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// jwksJSON строит JWKS из публичного RSA-ключа.
func jwksJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	data, _ := json.Marshal(map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": kid,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
	return data
}

type authEnv struct {
	key  *rsa.PrivateKey
	auth *JWTAuth
}

func setupAuth(t *testing.T) *authEnv {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	kf, err := keyfunc.NewJWKSetJSON(jwksJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("keyfunc из JWKS JSON: %v", err)
	}
	return &authEnv{key: key, auth: NewJWTAuthWithKeyfunc(kf, 5*time.Second, testLogger())}
}

func (e *authEnv) sign(t *testing.T, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	s, err := token.SignedString(e.key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func adminClaims(exp time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		ScopeString: "openid " + ScopeAdmin,
	}
}

func (e *authEnv) do(authorization string, next http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/files", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	e.auth.Middleware()(RequireScope(ScopeAdmin)(next)).ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth_ValidToken(t *testing.T) {
	env := setupAuth(t)
	called := false
	rec := env.do("Bearer "+env.sign(t, adminClaims(time.Now().Add(time.Hour))),
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			if sub := SubjectFromContext(r.Context()); sub != "ops" {
				t.Errorf("ожидался sub=ops, получен %s", sub)
			}
			if scopes := ScopesFromContext(r.Context()); len(scopes) != 2 {
				t.Errorf("неожиданные scopes: %v", scopes)
			}
			w.WriteHeader(http.StatusNoContent)
		}))

	if !called || rec.Code != http.StatusNoContent {
		t.Fatalf("ожидался вызов handler и 204, получен %d: %s", rec.Code, rec.Body.String())
	}
}

func TestJWTAuth_Rejections(t *testing.T) {
	env := setupAuth(t)
	never := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler не должен быть вызван")
	})

	noScope := adminClaims(time.Now().Add(time.Hour))
	noScope.ScopeString = "openid"

	noExp := adminClaims(time.Now())
	noExp.ExpiresAt = nil

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	foreign := jwt.NewWithClaims(jwt.SigningMethodRS256, adminClaims(time.Now().Add(time.Hour)))
	foreign.Header["kid"] = testKeyID
	foreignToken, _ := foreign.SignedString(otherKey)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"без заголовка", "", http.StatusUnauthorized},
		{"не Bearer", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"мусор", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"просрочен", "Bearer " + env.sign(t, adminClaims(time.Now().Add(-time.Hour))), http.StatusUnauthorized},
		{"без exp", "Bearer " + env.sign(t, noExp), http.StatusUnauthorized},
		{"чужая подпись", "Bearer " + foreignToken, http.StatusUnauthorized},
		{"без scope", "Bearer " + env.sign(t, noScope), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(tt.header, never)
			if rec.Code != tt.want {
				t.Errorf("ожидался %d, получен %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestJWTAuth_LeewayAcceptsRecentlyExpired(t *testing.T) {
	env := setupAuth(t)
	rec := env.do("Bearer "+env.sign(t, adminClaims(time.Now().Add(-2*time.Second))),
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
	if rec.Code != http.StatusOK {
		t.Errorf("токен в пределах leeway должен приниматься, получен %d", rec.Code)
	}
}

func TestClaims_Scopes(t *testing.T) {
	c := Claims{ScopeString: "a b", ScopeArray: []string{"c"}}
	got := c.Scopes()
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("Scopes: %v", got)
	}
}
