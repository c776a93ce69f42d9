package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"leadline.io/internal/crm"
)

func useTestSecret(t *testing.T) {
	t.Helper()
	t.Setenv("LEADLINE_AUTH_SECRET", "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidateToken(t *testing.T) {
	useTestSecret(t)

	token, err := GenerateToken("user-42", crm.RoleManager, 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Role != string(crm.RoleManager) {
		t.Fatalf("unexpected role: %s", claims.Role)
	}
	if claims.ID == "" {
		t.Fatal("jti must be set")
	}
}

func TestGenerateTokenRejectsBadInput(t *testing.T) {
	useTestSecret(t)

	if _, err := GenerateToken("", crm.RoleAdmin, time.Minute); err == nil {
		t.Fatal("empty user id accepted")
	}
	if _, err := GenerateToken("u1", crm.Role("ghost"), time.Minute); err == nil {
		t.Fatal("unknown role accepted")
	}
	if _, err := GenerateToken("u1", crm.RoleAdmin, 0); err == nil {
		t.Fatal("zero ttl accepted")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	useTestSecret(t)

	token, err := GenerateToken("u1", crm.RoleAdmin, time.Millisecond)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := ParseAndValidate(token); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestParseRejectsTamperedToken(t *testing.T) {
	useTestSecret(t)

	token, err := GenerateToken("u1", crm.RoleAdmin, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + ".AAAA"
	if _, err := ParseAndValidate(tampered); err == nil {
		t.Fatal("tampered signature accepted")
	}
	if _, err := ParseAndValidate(""); err == nil {
		t.Fatal("empty token accepted")
	}
}

func TestMissingSecret(t *testing.T) {
	t.Setenv("LEADLINE_AUTH_SECRET", "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := GenerateToken("u1", crm.RoleAdmin, time.Minute); err == nil {
		t.Fatal("token generated without a secret")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := PrincipalFromContext(ctx); ok {
		t.Fatal("empty context must not yield a principal")
	}

	ctx = ContextWithPrincipal(ctx, Principal{ID: "u1", Name: "A", Role: crm.RoleAdmin})
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.ID != "u1" || p.Role != crm.RoleAdmin {
		t.Fatalf("unexpected principal: %+v ok=%v", p, ok)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "hunter22" {
		t.Fatal("password stored in the clear")
	}
	if err := VerifyPassword(hash, "hunter22"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Fatal("wrong password accepted")
	}
}
