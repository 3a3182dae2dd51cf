package jfrog

import (
	"strings"
	"testing"

	"github.com/buildforge/wincore/internal/build"
	"github.com/buildforge/wincore/pkg/logger"
)

func testClient(baseURL string) *Client {
	return NewClient(baseURL, "svc", "secret", Options{}, logger.NewNop())
}

func TestBuildURLDefaultTemplate(t *testing.T) {
	c := testClient("https://repo.example.com/artifactory")
	comp := build.Component{
		GUID:       "1c9a7e20-55d1-4f9c-9a51-0b6f2f1f3a77",
		Name:       "PaymentSvc",
		ProjectKey: "ACME",
	}
	coord := build.Coordinate{Date: "20250310", Seq: 12}

	got, err := c.BuildURL(comp, "main", coord)
	if err != nil {
		t.Fatalf("BuildURL: %v", err)
	}
	want := "https://repo.example.com/artifactory/ACME/1c9a7e20-55d1-4f9c-9a51-0b6f2f1f3a77/main/Build20250310.12/PaymentSvc.zip"
	if got != want {
		t.Fatalf("BuildURL = %q, want %q", got, want)
	}
}

func TestBuildURLNestedBranch(t *testing.T) {
	c := testClient("https://repo.example.com")
	comp := build.Component{GUID: "g", Name: "Svc", ProjectKey: "P"}

	got, err := c.BuildURL(comp, "feature/login rework", build.Coordinate{Date: "20250310", Seq: 1})
	if err != nil {
		t.Fatalf("BuildURL: %v", err)
	}
	// The slash stays a path separator; the space inside a segment is encoded.
	if !strings.Contains(got, "/feature/login%20rework/") {
		t.Fatalf("branch not encoded as nested segments: %q", got)
	}
}

func TestBuildURLComponentTemplateOverride(t *testing.T) {
	c := testClient("https://repo.example.com")
	comp := build.Component{
		GUID:        "g",
		Name:        "Svc",
		ProjectKey:  "P",
		URLTemplate: "legacy/{componentName}/{branch}/{date}.{sequence}.zip",
	}

	got, err := c.BuildURL(comp, "main", build.Coordinate{Date: "20250310", Seq: 4})
	if err != nil {
		t.Fatalf("BuildURL: %v", err)
	}
	want := "https://repo.example.com/legacy/Svc/main/20250310.4.zip"
	if got != want {
		t.Fatalf("BuildURL = %q, want %q", got, want)
	}
}

func TestBuildURLUnknownPlaceholder(t *testing.T) {
	c := testClient("https://repo.example.com")
	comp := build.Component{
		GUID:        "g",
		Name:        "Svc",
		ProjectKey:  "P",
		URLTemplate: "{base}/{typo}/x.zip",
	}

	_, err := c.BuildURL(comp, "main", build.Coordinate{Date: "20250310", Seq: 1})
	if err == nil || !strings.Contains(err.Error(), "typo") {
		t.Fatalf("expected unknown-placeholder error naming the placeholder, got %v", err)
	}
}

func TestBuildURLTrailingSlashOnBase(t *testing.T) {
	c := testClient("https://repo.example.com/")
	comp := build.Component{GUID: "g", Name: "Svc", ProjectKey: "P"}

	got, err := c.BuildURL(comp, "main", build.Coordinate{Date: "20250310", Seq: 1})
	if err != nil {
		t.Fatalf("BuildURL: %v", err)
	}
	if strings.Contains(got, "com//") {
		t.Fatalf("double slash after base: %q", got)
	}
}
