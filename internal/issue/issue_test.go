// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

func stubRender(t *testing.T) {
	t.Helper()
	original := render
	t.Cleanup(func() { render = original })
	render = func(in, _ string) (string, error) { return in, nil }
}

func TestIssuesCatalogComplete(t *testing.T) {
	t.Parallel()

	ids := []Id{
		ManifestNotFoundId,
		ManifestParseErrorId,
		ManifestInvalidId,
		PackageNotFoundId,
		DependencyCycleId,
		PackageLoadFailedId,
		AssetNotFoundId,
		PackFailedId,
		ConfigLoadFailedId,
		PermissionDeniedId,
	}
	if ManifestNotFoundId != 1 {
		t.Errorf("ids should start at 1, got %d", ManifestNotFoundId)
	}
	for _, id := range ids {
		i := Get(id)
		if i == nil {
			t.Errorf("Get(%d) returned nil", id)
			continue
		}
		if i.Id() != id || i.MarkdownMsg() == "" {
			t.Errorf("issue %d is malformed", id)
		}
	}
	if len(Values()) != len(ids) {
		t.Errorf("Values() has %d issues, want %d", len(Values()), len(ids))
	}
	if Get(999) != nil {
		t.Error("Get() of an unknown id should be nil")
	}
}

func TestValues_Ordered(t *testing.T) {
	t.Parallel()

	vals := Values()
	for i := 1; i < len(vals); i++ {
		if vals[i-1].Id() >= vals[i].Id() {
			t.Fatalf("Values() not ordered at %d", i)
		}
	}
}

// Render tests swap the package-level renderer and must not run in parallel.
func TestIssue_Render(t *testing.T) {
	stubRender(t)

	out, err := Get(DependencyCycleId).Render("")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(out, "Dependency cycle detected") || strings.Contains(out, "See also") {
		t.Errorf("unexpected render output:\n%s", out)
	}

	linked := &Issue{id: 100, mdMsg: "# Linked", docLinks: []HttpLink{"https://example.com/docs"}, extLinks: []HttpLink{"https://example.com/ext"}}
	out, _ = linked.Render("")
	if !strings.Contains(out, "## See also:") || !strings.Contains(out, "- [https://example.com/docs]") || !strings.Contains(out, "- [https://example.com/ext]") {
		t.Errorf("links missing from:\n%s", out)
	}

	links := linked.DocLinks()
	links[0] = "mutated"
	if linked.DocLinks()[0] != "https://example.com/docs" {
		t.Error("DocLinks() should return a copy")
	}
}

func TestAllIssuesRender(t *testing.T) {
	stubRender(t)

	for _, i := range Values() {
		out, err := i.Render("")
		if err != nil || out == "" {
			t.Errorf("issue %d: Render() = %q, %v", i.Id(), out, err)
		}
	}
}
