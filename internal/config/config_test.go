package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("JWT_SECRET", "test-secret")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Port != 8080 {
		t.Fatalf("default port: got %d", c.Port)
	}
	if c.PingInterval != 25*time.Second {
		t.Fatalf("derived ping interval: got %v", c.PingInterval)
	}
	if c.TokenTTL != 24*time.Hour {
		t.Fatalf("derived token ttl: got %v", c.TokenTTL)
	}
	if c.MaxContentLen != 20000 {
		t.Fatalf("default max content len: got %d", c.MaxContentLen)
	}
}

func TestLoadReadsSecretsFromEnvironment(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://db.internal:27017")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_KEYS", "k1:one,k2:two")
	t.Setenv("JWT_ACTIVE_KID", "k2")
	t.Setenv("REDIS_PASSWORD", "hunter2")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.MongoURI != "mongodb://db.internal:27017" {
		t.Fatalf("mongo uri not read from env: %q", c.MongoURI)
	}
	if c.JWTKeys != "k1:one,k2:two" || c.JWTActiveKid != "k2" {
		t.Fatalf("jwt rotation keys not read from env: %q / %q", c.JWTKeys, c.JWTActiveKid)
	}
	if c.RedisPass != "hunter2" {
		t.Fatalf("redis password not read from env: %q", c.RedisPass)
	}
}

func TestLoadRequiresCredentialKey(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_KEYS", "")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error when no signing key is configured")
	}
}

func TestSigningKeys(t *testing.T) {
	c := &Config{JWTKeys: "k1:one,k2:two"}
	keys, err := c.SigningKeys()
	if err != nil {
		t.Fatalf("SigningKeys failed: %v", err)
	}
	if keys["k1"] != "one" || keys["k2"] != "two" {
		t.Fatalf("unexpected key map: %v", keys)
	}

	c = &Config{JWTKeys: "broken"}
	if _, err := c.SigningKeys(); err == nil {
		t.Fatal("expected error for malformed JWT_KEYS entry")
	}
}
