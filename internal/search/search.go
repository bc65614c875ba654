package search

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/search"

	"github.com/resumechat/resumechat/internal/resume"
)

// Hit is one matching resume fragment. Snippet is the highlighted region
// around the match; Position is the byte offset of the first matched term
// within the fragment text.
type Hit struct {
	DocID    string  `json:"doc_id"`
	Section  string  `json:"section"`
	Title    string  `json:"title"`
	Snippet  string  `json:"snippet"`
	Position int     `json:"position"`
	Score    float64 `json:"score"`
	Rank     int     `json:"rank"`
}

type fragment struct {
	Section string `json:"section"`
	Title   string `json:"title"`
	Text    string `json:"text"`
}

// Search indexes the document's sections into a throwaway in-memory index
// and runs a BM25 query over them. The document is small enough that
// rebuilding per call is cheaper than keeping indexes in sync with edits.
func Search(doc resume.Document, q string, k int) ([]Hit, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	defer index.Close()

	frags := fragments(doc)
	for id, f := range frags {
		if err := index.Index(id, f); err != nil {
			return nil, err
		}
	}

	query := bleve.NewQueryStringQuery(q)
	searchReq := bleve.NewSearchRequestOptions(query, k*3, 0, false)
	searchReq.Highlight = bleve.NewHighlightWithStyle("html")
	searchReq.IncludeLocations = true
	res, err := index.Search(searchReq)
	if err != nil {
		return nil, err
	}

	var out []Hit
	for i, hit := range res.Hits {
		f := frags[hit.ID]
		snip := snippet(f.Text)
		if hl := hit.Fragments["text"]; len(hl) > 0 {
			snip = hl[0]
		}
		out = append(out, Hit{
			DocID: hit.ID, Section: f.Section, Title: f.Title,
			Snippet:  snip,
			Position: matchOffset(hit.Locations),
			Score:    hit.Score, Rank: i + 1,
		})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

// matchOffset returns the byte offset of the earliest matched term in the
// fragment text field.
func matchOffset(locations search.FieldTermLocationMap) int {
	offset := -1
	for _, locs := range locations["text"] {
		for _, loc := range locs {
			if offset < 0 || int(loc.Start) < offset {
				offset = int(loc.Start)
			}
		}
	}
	if offset < 0 {
		return 0
	}
	return offset
}

// fragments flattens the document into searchable units keyed by a stable id
// the model can hand back to entry-addressed operations.
func fragments(doc resume.Document) map[string]fragment {
	out := make(map[string]fragment)
	if doc.Summary != "" {
		out["summary"] = fragment{Section: resume.SectionSummary, Title: "Summary", Text: doc.Summary}
	}
	if doc.Contact.Name != "" || doc.Contact.Email != "" {
		out["contact"] = fragment{
			Section: resume.SectionContact,
			Title:   doc.Contact.Name,
			Text: strings.Join([]string{
				doc.Contact.Name, doc.Contact.Title, doc.Contact.Email,
				doc.Contact.Location, doc.Contact.LinkedIn, doc.Contact.Website,
			}, " "),
		}
	}
	for _, e := range doc.Experience {
		out["experience:"+e.ID] = fragment{
			Section: resume.SectionExperience,
			Title:   fmt.Sprintf("%s at %s", e.Role, e.Company),
			Text:    strings.Join([]string{e.Role, e.Company, e.Location, e.Duration, e.Description}, " "),
		}
	}
	for _, e := range doc.Education {
		out["education:"+e.ID] = fragment{
			Section: resume.SectionEducation,
			Title:   fmt.Sprintf("%s, %s", e.Degree, e.School),
			Text:    strings.Join([]string{e.Degree, e.School, e.Duration, e.Notes}, " "),
		}
	}
	if len(doc.Skills.Technical) > 0 {
		out["skills:technical"] = fragment{
			Section: resume.SectionSkills, Title: "Technical skills",
			Text: strings.Join(doc.Skills.Technical, ", "),
		}
	}
	if len(doc.Skills.Soft) > 0 {
		out["skills:soft"] = fragment{
			Section: resume.SectionSkills, Title: "Soft skills",
			Text: strings.Join(doc.Skills.Soft, ", "),
		}
	}
	return out
}

func snippet(s string) string {
	if len(s) <= 300 {
		return s
	}
	cut := 300
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
