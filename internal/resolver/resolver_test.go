package resolver

import (
	"regexp"
	"testing"

	"github.com/edgestream/videocache/internal/domain/model"
)

func testOrigins() []model.Origin {
	return []model.Origin{
		{
			Name:          "videos",
			Matcher:       regexp.MustCompile(`^/videos/(.+)$`),
			CaptureGroups: []string{"path"},
			Sources: []model.Source{
				{Type: model.SourceTypeR2, Priority: 0, PathTemplate: "$1"},
				{Type: model.SourceTypeRemote, Priority: 1, BaseURL: "https://origin.example.com", PathTemplate: "$1"},
			},
		},
		{
			Name:    "unmatchable",
			Matcher: regexp.MustCompile(`^/never/(.+)$`),
			// no sources
		},
	}
}

func TestMatchOriginWithCaptures_FirstMatchWins(t *testing.T) {
	r := New(testOrigins(), nil)

	match, ok := r.MatchOriginWithCaptures("/videos/sample.mp4")
	if !ok {
		t.Fatalf("expected a match")
	}
	if match.OriginIndex != 0 {
		t.Fatalf("expected origin index 0, got %d", match.OriginIndex)
	}
	if match.Captures["1"] != "sample.mp4" || match.Captures["path"] != "sample.mp4" {
		t.Fatalf("unexpected captures: %+v", match.Captures)
	}
}

func TestMatchOriginWithCaptures_NoMatch(t *testing.T) {
	r := New(testOrigins(), nil)
	_, ok := r.MatchOriginWithCaptures("/images/logo.png")
	if ok {
		t.Fatalf("expected no match")
	}
}

func TestResolvePathToSource_PrefersPriorityOrder(t *testing.T) {
	r := New(testOrigins(), nil)

	_, res, ok := r.ResolvePathToSource("/videos/sample.mp4", ResolveOptions{})
	if !ok {
		t.Fatalf("expected a resolution")
	}
	if res.OriginType != model.SourceTypeR2 {
		t.Fatalf("expected R2 (priority 0) to win, got %s", res.OriginType)
	}
	if res.ResolvedPath != "sample.mp4" {
		t.Fatalf("expected resolved path sample.mp4, got %q", res.ResolvedPath)
	}
}

func TestResolvePathToSource_PreferTypeOverridesPriority(t *testing.T) {
	r := New(testOrigins(), nil)

	_, res, ok := r.ResolvePathToSource("/videos/sample.mp4", ResolveOptions{PreferType: model.SourceTypeRemote})
	if !ok {
		t.Fatalf("expected a resolution")
	}
	if res.OriginType != model.SourceTypeRemote {
		t.Fatalf("expected remote preferred, got %s", res.OriginType)
	}
	if res.SourceURL != "https://origin.example.com/sample.mp4" {
		t.Fatalf("unexpected source url: %q", res.SourceURL)
	}
}

func TestResolvePathToSource_ExclusionFallsThrough(t *testing.T) {
	r := New(testOrigins(), nil)

	_, res, ok := r.ResolvePathToSource("/videos/sample.mp4", ResolveOptions{
		Exclude: []model.SourceExclusion{{OriginName: "videos", SourceType: model.SourceTypeR2}},
	})
	if !ok {
		t.Fatalf("expected a resolution")
	}
	if res.OriginType != model.SourceTypeRemote {
		t.Fatalf("expected remote after excluding r2, got %s", res.OriginType)
	}
}

func TestResolvePathToSource_EmptySourcesUnmatchable(t *testing.T) {
	r := New(testOrigins(), nil)
	_, _, ok := r.ResolvePathToSource("/never/x", ResolveOptions{})
	if ok {
		t.Fatalf("expected origin with zero sources to be unmatchable for source resolution")
	}
}

func TestFindAllMatchingOrigins(t *testing.T) {
	origins := []model.Origin{
		{Name: "a", Matcher: regexp.MustCompile(`^/shared/(.+)$`)},
		{Name: "b", Matcher: regexp.MustCompile(`^/shared/.+$`)},
	}
	r := New(origins, nil)
	matches := r.FindAllMatchingOrigins("/shared/x.mp4")
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
}

func TestJoinURL_ExactlyOneSlash(t *testing.T) {
	cases := []struct{ base, path, want string }{
		{"https://example.com/", "/a/b", "https://example.com/a/b"},
		{"https://example.com", "a/b", "https://example.com/a/b"},
		{"https://example.com/", "a/b", "https://example.com/a/b"},
	}
	for _, c := range cases {
		got := joinURL(c.base, c.path)
		if got != c.want {
			t.Errorf("joinURL(%q, %q) = %q, want %q", c.base, c.path, got, c.want)
		}
	}
}
