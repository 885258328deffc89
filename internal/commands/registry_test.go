package commands

import "testing"

func TestAliasResolvesToCanonical(t *testing.T) {
	r := NewRegistry()
	cmd, ok := r.Lookup("/j")
	if !ok || cmd.Name != "/join" {
		t.Fatalf("expected alias /j to resolve to /join, got %+v, %v", cmd, ok)
	}
}

func TestEveryAliasResolvesExactlyOnce(t *testing.T) {
	r := NewRegistry()
	for alias, canon := range r.aliases {
		cmd, ok := r.Lookup(alias)
		if !ok {
			t.Fatalf("alias %q does not resolve", alias)
		}
		if cmd.Name != canon {
			t.Fatalf("alias %q resolved to %q, want %q", alias, cmd.Name, canon)
		}
	}
}

func TestParseRejectsNonCommand(t *testing.T) {
	if _, _, ok := Parse("hello there"); ok {
		t.Fatal("expected ok=false for a line without leading /")
	}
}

func TestParseSplitsArgs(t *testing.T) {
	name, args, ok := Parse("/whisper bob hey there")
	if !ok || name != "/whisper" || len(args) != 3 {
		t.Fatalf("got %q, %v, %v", name, args, ok)
	}
}

func TestResolveRejectsNonAdminForAdminOnly(t *testing.T) {
	r := NewRegistry()
	_, _, res := r.Resolve("/kick bob", true, false)
	if res != ResolutionNeedsAdmin {
		t.Fatalf("expected ResolutionNeedsAdmin, got %v", res)
	}
}

func TestResolveRejectsUnmaskedForAuthRequired(t *testing.T) {
	r := NewRegistry()
	_, _, res := r.Resolve("/whisper bob hi", false, false)
	if res != ResolutionNeedsAuth {
		t.Fatalf("expected ResolutionNeedsAuth, got %v", res)
	}
}

func TestResolveUnknownCommand(t *testing.T) {
	r := NewRegistry()
	_, _, res := r.Resolve("/nonexistent", true, false)
	if res != ResolutionUnknown {
		t.Fatalf("expected ResolutionUnknown, got %v", res)
	}
}

func TestResolveOKForPlainCommand(t *testing.T) {
	r := NewRegistry()
	cmd, args, res := r.Resolve("/mute", false, false)
	if res != ResolutionOK || cmd.Name != "/mute" || len(args) != 0 {
		t.Fatalf("got %+v, %v, %v", cmd, args, res)
	}
}

func TestForUserHidesAdminOnly(t *testing.T) {
	r := NewRegistry()
	list := r.ForUser(false)
	for _, c := range list {
		if c.AdminOnly {
			t.Fatalf("admin-only command %q leaked to non-admin listing", c.Name)
		}
	}
	adminList := r.ForUser(true)
	if len(adminList) <= len(list) {
		t.Fatal("admin listing should include more commands than the non-admin listing")
	}
}
