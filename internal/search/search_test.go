package search

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/resumechat/resumechat/internal/resume"
)

func testDocument() resume.Document {
	return resume.Document{
		Version: 3,
		Summary: "Backend engineer focused on distributed systems and developer tooling.",
		Contact: resume.Contact{Name: "Ada Lovelace", Email: "ada@example.com"},
		Experience: []resume.ExperienceEntry{
			{ID: "a", Company: "Acme", Role: "Platform Engineer", Duration: "2019 - 2022", Description: "Built the Kubernetes deployment pipeline."},
			{ID: "b", Company: "Globex", Role: "Staff Engineer", Duration: "2022 - Present", Description: "Leads the storage team."},
		},
		Skills: resume.Skills{Technical: []string{"Go", "Kubernetes", "PostgreSQL"}},
		Education: []resume.EducationEntry{
			{ID: "c", School: "MIT", Degree: "BSc Computer Science", Duration: "2014 - 2018"},
		},
	}
}

func TestSearchFindsExperienceByKeyword(t *testing.T) {
	hits, err := Search(testDocument(), "kubernetes", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits")
	}
	var sawExperience bool
	for _, h := range hits {
		if h.DocID == "experience:a" {
			sawExperience = true
			if h.Snippet == "" {
				t.Error("hit has no snippet")
			}
		}
	}
	if !sawExperience {
		t.Fatalf("hits = %+v, want experience:a", hits)
	}
}

func TestSearchSnippetContainsMatchDeepInSection(t *testing.T) {
	doc := resume.Document{
		Version: 1,
		Summary: strings.Repeat("filler text about engineering practice. ", 10) +
			"Deep expertise in Terraform and cloud provisioning.",
	}
	hits, err := Search(doc, "terraform", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits")
	}
	hit := hits[0]
	if hit.DocID != "summary" {
		t.Fatalf("top hit = %s", hit.DocID)
	}
	if !strings.Contains(strings.ToLower(hit.Snippet), "terraform") {
		t.Fatalf("snippet %q does not contain the matched term", hit.Snippet)
	}
	if hit.Position <= 300 {
		t.Fatalf("position = %d, want the match offset past the section head", hit.Position)
	}
	if want := strings.Index(strings.ToLower(doc.Summary), "terraform"); hit.Position != want {
		t.Fatalf("position = %d, want %d", hit.Position, want)
	}
}

func TestSnippetKeepsRuneBoundaries(t *testing.T) {
	long := "a" + strings.Repeat("€", 150)
	got := snippet(long)
	if !utf8.ValidString(got) {
		t.Fatalf("snippet produced invalid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("snippet %q not truncated", got)
	}
}

func TestSearchRespectsLimit(t *testing.T) {
	hits, err := Search(testDocument(), "engineer", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) > 1 {
		t.Fatalf("len = %d, want <= 1", len(hits))
	}
}

func TestSearchEmptyDocument(t *testing.T) {
	hits, err := Search(resume.Empty("u"), "anything", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("hits = %+v, want none", hits)
	}
}

func TestSearchRanksHits(t *testing.T) {
	hits, err := Search(testDocument(), "storage team", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits")
	}
	if hits[0].Rank != 1 {
		t.Fatalf("rank = %d", hits[0].Rank)
	}
	if hits[0].DocID != "experience:b" {
		t.Fatalf("top hit = %s", hits[0].DocID)
	}
}
