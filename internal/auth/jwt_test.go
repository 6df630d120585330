package auth

import (
	"testing"
)

func testCfg() JWTCfg {
	return JWTCfg{
		Secret:             "test-secret",
		Algorithm:          "HS256",
		AccessTokenMinutes: 30,
		RefreshTokenDays:   30,
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	cfg := testCfg()

	tok, err := cfg.BuildAccessToken("user-1")
	if err != nil {
		t.Fatalf("BuildAccessToken: %v", err)
	}

	sub, typ, err := cfg.ParseToken(tok)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if sub != "user-1" {
		t.Errorf("sub = %q, want user-1", sub)
	}
	if typ != TokenTypeAccess {
		t.Errorf("type = %q, want %q", typ, TokenTypeAccess)
	}
}

func TestRefreshTokenType(t *testing.T) {
	cfg := testCfg()

	tok, err := cfg.BuildRefreshToken("user-1")
	if err != nil {
		t.Fatalf("BuildRefreshToken: %v", err)
	}
	_, typ, err := cfg.ParseToken(tok)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if typ != TokenTypeRefresh {
		t.Errorf("type = %q, want %q", typ, TokenTypeRefresh)
	}
}

func TestRefreshTokensDistinct(t *testing.T) {
	cfg := testCfg()
	a, _ := cfg.BuildRefreshToken("user-1")
	b, _ := cfg.BuildRefreshToken("user-1")
	if a == b {
		t.Error("two refresh tokens issued in the same second are identical")
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	cfg := testCfg()
	tok, _ := cfg.BuildAccessToken("user-1")

	other := testCfg()
	other.Secret = "different-secret"
	if _, _, err := other.ParseToken(tok); err == nil {
		t.Error("token signed with another secret was accepted")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	cfg := testCfg()
	for _, tok := range []string{"", "not.a.jwt", "aaa.bbb.ccc"} {
		if _, _, err := cfg.ParseToken(tok); err == nil {
			t.Errorf("ParseToken(%q) accepted garbage", tok)
		}
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	cfg := testCfg()
	cfg.AccessTokenMinutes = -1

	tok, err := cfg.BuildAccessToken("user-1")
	if err != nil {
		t.Fatalf("BuildAccessToken: %v", err)
	}
	if _, _, err := cfg.ParseToken(tok); err == nil {
		t.Error("expired token was accepted")
	}
}
