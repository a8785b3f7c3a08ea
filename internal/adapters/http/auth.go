package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
)

const (
	RoleHandler            = "handler"
	RoleVP                 = "vp"
	RoleProcurementManager = "procurement_manager"
	RoleAdmin              = "admin"
)

// Actor is the authenticated internal user behind a request.
type Actor struct {
	Name string
	Role string
}

type actorClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type actorContextKey struct{}

func actorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

func knownRole(role string) bool {
	switch role {
	case RoleHandler, RoleVP, RoleProcurementManager, RoleAdmin:
		return true
	default:
		return false
	}
}

// IssueToken signs an HS256 actor token for the given actor.
func IssueToken(secret string, actor Actor, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := actorClaims{
		Name: actor.Name,
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.Name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseActor(secret, tokenString string) (Actor, error) {
	claims := &actorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Actor{}, err
	}
	if !token.Valid {
		return Actor{}, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Name) == "" || !knownRole(claims.Role) {
		return Actor{}, fmt.Errorf("unsupported claims name=%q role=%q", claims.Name, claims.Role)
	}
	return Actor{Name: claims.Name, Role: claims.Role}, nil
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(strings.TrimSpace(r.Header.Get("Authorization")), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func authMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" || secret == "" {
				writeError(w, r, domain.WrapError(domain.ErrUnauthorized, "authenticate", errors.New("missing bearer token")))
				return
			}
			actor, err := parseActor(secret, raw)
			if err != nil {
				writeError(w, r, domain.WrapError(domain.ErrUnauthorized, "authenticate", err))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorContextKey{}, actor)))
		})
	}
}

// requireRole admits the listed roles; admin is always admitted.
func requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := actorFromContext(r.Context())
			if !ok {
				writeError(w, r, domain.WrapError(domain.ErrUnauthorized, "authorize", errors.New("no actor")))
				return
			}
			if actor.Role != RoleAdmin && !slices.Contains(roles, actor.Role) {
				writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Detail: "role " + actor.Role + " may not perform this action"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// gateRoles maps each approval gate to the role allowed to decide it.
var gateRoles = map[domain.GateName]string{
	domain.GateFirstReview:        RoleHandler,
	domain.GateVP:                 RoleVP,
	domain.GateProcurementManager: RoleProcurementManager,
}

func mayDecideGate(actor Actor, gate domain.GateName) bool {
	return actor.Role == RoleAdmin || gateRoles[gate] == actor.Role
}
