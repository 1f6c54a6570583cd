package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	ti := NewTokenIssuer("secret", time.Minute)
	token, err := ti.GenerateToken(models.User{ID: 7, Username: "maria", Role: models.RoleOperator})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ti.TokenClaims("Bearer " + token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Username != "maria" || claims.Role != models.RoleOperator || claims.Subject != "7" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestTokenIssuer_Rejects(t *testing.T) {
	ti := NewTokenIssuer("secret", time.Minute)
	other := NewTokenIssuer("other-secret", time.Minute)
	token, _ := other.GenerateToken(models.User{ID: 1, Username: "admin", Role: models.RoleAdmin})

	expired := NewTokenIssuer("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _ := expired.GenerateToken(models.User{ID: 1, Username: "admin", Role: models.RoleAdmin})

	tests := []struct {
		name   string
		header string
	}{
		{"missing prefix", token},
		{"empty", "Bearer "},
		{"wrong secret", "Bearer " + token},
		{"expired", "Bearer " + old},
		{"garbage", "Bearer not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ti.TokenClaims(tt.header); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestMemoryRefreshStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRefreshStore()

	token, err := NewRefreshToken()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, token, "maria", time.Minute); err != nil {
		t.Fatal(err)
	}
	if got, err := s.Lookup(ctx, token); err != nil || got != "maria" {
		t.Fatalf("expected maria, got %q (%v)", got, err)
	}

	if err := s.Revoke(ctx, token); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Lookup(ctx, token); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Errorf("expected ErrRefreshTokenNotFound, got %v", err)
	}

	_ = s.Save(ctx, "short", "maria", -time.Second)
	if _, err := s.Lookup(ctx, "short"); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Errorf("expired token should not be found, got %v", err)
	}
}
