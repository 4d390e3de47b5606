package httpapi

import (
	"strings"
	"testing"
	"time"

	"ledgerdesk/backend/internal/domain"
)

func newTestAuth() *AuthManager {
	return NewAuthManager("unit-test-secret", time.Hour, "739154", nil)
}

func TestTokenRoundTrip(t *testing.T) {
	auth := newTestAuth()

	token, err := auth.sign("owner", domain.RoleOwner, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	actor, err := auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if actor.Username != "owner" || actor.Role != domain.RoleOwner {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	auth := newTestAuth()

	token, err := auth.sign("owner", domain.RoleOwner, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tampered := token[:len(token)-2] + "xx"
	if _, err := auth.ParseToken(tampered); err == nil {
		t.Fatalf("expected tampered token to be rejected")
	}

	other := NewAuthManager("a-completely-different-secret", time.Hour, "739154", nil)
	if _, err := other.ParseToken(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := newTestAuth()

	token, err := auth.sign("owner", domain.RoleOwner, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestValidateOwnerPIN(t *testing.T) {
	auth := newTestAuth()

	if !auth.ValidateOwnerPIN("739154") {
		t.Fatalf("correct PIN rejected")
	}
	if auth.ValidateOwnerPIN("000000") {
		t.Fatalf("wrong PIN accepted")
	}
	if auth.ValidateOwnerPIN("") {
		t.Fatalf("empty PIN accepted")
	}
}

func TestCreateStaffValidation(t *testing.T) {
	auth := newTestAuth()

	cases := []domain.StaffCreateRequest{
		{Username: "ab", Password: "secret99"},
		{Username: "has space", Password: "secret99"},
		{Username: "validname", Password: "123"},
	}
	for i, req := range cases {
		if _, err := auth.CreateStaff(req); err == nil {
			t.Fatalf("case %d: expected validation failure", i)
		}
	}

	staff, err := auth.CreateStaff(domain.StaffCreateRequest{Username: "ValidName", Password: "secret99"})
	if err != nil {
		t.Fatalf("create staff: %v", err)
	}
	if staff.Username != strings.ToLower("ValidName") {
		t.Fatalf("username not lowercased: %q", staff.Username)
	}
	if staff.Role != domain.RoleStaff || !staff.Active {
		t.Fatalf("unexpected staff account: %+v", staff)
	}

	if _, err := auth.CreateStaff(domain.StaffCreateRequest{Username: "validname", Password: "secret99"}); err == nil {
		t.Fatalf("expected duplicate username to be rejected")
	}

	listed := auth.ListStaff()
	if len(listed) != 1 || listed[0].Username != "validname" {
		t.Fatalf("unexpected staff listing: %+v", listed)
	}
}
