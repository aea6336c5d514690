package main

import (
	"testing"

	"github.com/toolscope/discovery-engine/internal/model"
)

func TestParseSpaces_Empty(t *testing.T) {
	spaces, err := parseSpaces(nil)
	if err != nil {
		t.Fatalf("parseSpaces: %v", err)
	}
	if spaces != nil {
		t.Fatalf("expected nil (all spaces) for no --vectorTypes, got %v", spaces)
	}
}

func TestParseSpaces_Valid(t *testing.T) {
	spaces, err := parseSpaces([]string{"semantic", "entities.categories"})
	if err != nil {
		t.Fatalf("parseSpaces: %v", err)
	}
	if len(spaces) != 2 || spaces[0] != model.SpaceSemantic || spaces[1] != model.SpaceEntitiesCategories {
		t.Fatalf("unexpected spaces: %v", spaces)
	}
}

func TestParseSpaces_Unknown(t *testing.T) {
	_, err := parseSpaces([]string{"not-a-space"})
	if err == nil {
		t.Fatal("expected an error for an unknown vector space name")
	}
}

func TestSplitHostPort_WithScheme(t *testing.T) {
	host, port, err := splitHostPort("http://localhost:6334")
	if err != nil {
		t.Fatalf("splitHostPort: %v", err)
	}
	if host != "localhost" || port != 6334 {
		t.Fatalf("got host=%q port=%d, want localhost:6334", host, port)
	}
}

func TestSplitHostPort_DefaultPort(t *testing.T) {
	host, port, err := splitHostPort("https://qdrant.example.com")
	if err != nil {
		t.Fatalf("splitHostPort: %v", err)
	}
	if host != "qdrant.example.com" || port != 6334 {
		t.Fatalf("got host=%q port=%d, want qdrant.example.com:6334", host, port)
	}
}

func TestAsExitErr(t *testing.T) {
	var ee exitErr
	if !asExitErr(exitErr{code: 2, err: errString("boom")}, &ee) {
		t.Fatal("expected asExitErr to recognize an exitErr")
	}
	if ee.code != 2 {
		t.Fatalf("code = %d, want 2", ee.code)
	}
	if asExitErr(errString("plain"), &ee) {
		t.Fatal("expected asExitErr to reject a non-exitErr")
	}
}

type errString string

func (e errString) Error() string { return string(e) }
