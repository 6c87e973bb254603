// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/seed-foundation/seed/lib/authtoken"
	"github.com/seed-foundation/seed/lib/config"
	"github.com/seed-foundation/seed/session"
)

func TestSessionConfigConversion(t *testing.T) {
	got, err := sessionConfig(config.SessionConfig{
		AuthWindow:        "10s",
		IdleWindow:        "5m",
		HeartbeatInterval: "30s",
		QueueCapacity:     128,
		OverflowPolicy:    "disconnect",
		PersistAttempts:   5,
	})
	if err != nil {
		t.Fatalf("sessionConfig: %v", err)
	}
	if got.AuthWindow != 10*time.Second {
		t.Errorf("AuthWindow = %v, want 10s", got.AuthWindow)
	}
	if got.IdleWindow != 5*time.Minute {
		t.Errorf("IdleWindow = %v, want 5m", got.IdleWindow)
	}
	if got.QueueCapacity != 128 {
		t.Errorf("QueueCapacity = %d, want 128", got.QueueCapacity)
	}
	if got.OverflowPolicy != session.OverflowDisconnect {
		t.Errorf("OverflowPolicy = %v, want disconnect", got.OverflowPolicy)
	}
	if got.PersistAttempts != 5 {
		t.Errorf("PersistAttempts = %d, want 5", got.PersistAttempts)
	}
	// Absent durations stay zero for the core's defaulting, except
	// the drain grace, which the shutdown path reads directly.
	if got.QueuePushTimeout != 0 {
		t.Errorf("QueuePushTimeout = %v, want 0", got.QueuePushTimeout)
	}
	if got.DrainGrace != session.DefaultConfig().DrainGrace {
		t.Errorf("DrainGrace = %v, want default", got.DrainGrace)
	}
}

func TestSessionConfigRejectsBadValues(t *testing.T) {
	if _, err := sessionConfig(config.SessionConfig{AuthWindow: "soon"}); err == nil {
		t.Error("bad duration accepted")
	}
	if _, err := sessionConfig(config.SessionConfig{OverflowPolicy: "explode"}); err == nil {
		t.Error("bad overflow policy accepted")
	}
}

func TestBuildLogger(t *testing.T) {
	for _, cfg := range []config.LogConfig{
		{},
		{Level: "debug", Format: "json"},
		{Level: "error", Format: "text"},
	} {
		if _, err := buildLogger(cfg); err != nil {
			t.Errorf("buildLogger(%+v): %v", cfg, err)
		}
	}
	if _, err := buildLogger(config.LogConfig{Level: "loud"}); err == nil {
		t.Error("bad level accepted")
	}
	if _, err := buildLogger(config.LogConfig{Format: "xml"}); err == nil {
		t.Error("bad format accepted")
	}
}

func TestTokenValidator(t *testing.T) {
	public, private, err := authtoken.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	now := time.Now()
	raw, err := authtoken.Mint(private, &authtoken.Token{
		Principal: "alice",
		Audience:  "seed",
		ID:        "t1",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	validator := tokenValidator(public, "seed")
	ctx := context.Background()

	principal, err := validator.Validate(ctx, raw)
	if err != nil {
		t.Fatalf("Validate raw token: %v", err)
	}
	if principal != "alice" {
		t.Errorf("principal = %q, want alice", principal)
	}

	// The same token as its query-parameter spelling.
	encoded := []byte(base64.RawURLEncoding.EncodeToString(raw))
	principal, err = validator.Validate(ctx, encoded)
	if err != nil {
		t.Fatalf("Validate base64url token: %v", err)
	}
	if principal != "alice" {
		t.Errorf("principal = %q, want alice", principal)
	}

	// Wrong audience and garbage both reject.
	if _, err := validator.Validate(ctx, raw[:10]); !errors.Is(err, session.ErrRejected) {
		t.Errorf("truncated token error = %v, want ErrRejected", err)
	}
	other := tokenValidator(public, "not-seed")
	if _, err := other.Validate(ctx, raw); !errors.Is(err, session.ErrRejected) {
		t.Errorf("audience mismatch error = %v, want ErrRejected", err)
	}
}
