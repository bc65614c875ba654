package resume

import (
	"fmt"
	"unicode/utf8"
)

// FieldChange records one changed field between two document versions.
// Before/After are nil for pure additions/removals.
type FieldChange struct {
	Path   string      `json:"path"`
	Before interface{} `json:"before,omitempty"`
	After  interface{} `json:"after,omitempty"`
}

// Diff computes the normalized field-level delta from old to new. Entry
// slices are matched by ID, skill lists by case-insensitive value.
func Diff(old, new Document) []FieldChange {
	var out []FieldChange

	if old.Summary != new.Summary {
		out = append(out, FieldChange{Path: "summary", Before: truncate(old.Summary), After: truncate(new.Summary)})
	}
	out = append(out, diffContact(old.Contact, new.Contact)...)
	out = append(out, diffExperience(old.Experience, new.Experience)...)
	out = append(out, diffEducation(old.Education, new.Education)...)
	out = append(out, diffSkillList("skills.technical", old.Skills.Technical, new.Skills.Technical)...)
	out = append(out, diffSkillList("skills.soft", old.Skills.Soft, new.Skills.Soft)...)
	return out
}

func diffContact(old, new Contact) []FieldChange {
	var out []FieldChange
	fields := []struct {
		name     string
		old, new string
	}{
		{"name", old.Name, new.Name},
		{"title", old.Title, new.Title},
		{"email", old.Email, new.Email},
		{"phone", old.Phone, new.Phone},
		{"location", old.Location, new.Location},
		{"linkedin", old.LinkedIn, new.LinkedIn},
		{"website", old.Website, new.Website},
	}
	for _, f := range fields {
		if f.old != f.new {
			out = append(out, FieldChange{Path: "contact." + f.name, Before: f.old, After: f.new})
		}
	}
	return out
}

func diffExperience(old, new []ExperienceEntry) []FieldChange {
	var out []FieldChange
	oldByID := make(map[string]ExperienceEntry, len(old))
	for _, e := range old {
		oldByID[e.ID] = e
	}
	newIDs := make(map[string]struct{}, len(new))
	for _, e := range new {
		newIDs[e.ID] = struct{}{}
		prev, existed := oldByID[e.ID]
		if !existed {
			out = append(out, FieldChange{Path: expPath(e.ID, ""), After: fmt.Sprintf("%s at %s", e.Role, e.Company)})
			continue
		}
		out = append(out, diffEntryFields(expPath(e.ID, ""), []fieldPair{
			{"company", prev.Company, e.Company},
			{"role", prev.Role, e.Role},
			{"duration", prev.Duration, e.Duration},
			{"description", truncate(prev.Description), truncate(e.Description)},
			{"location", prev.Location, e.Location},
		})...)
	}
	for _, e := range old {
		if _, kept := newIDs[e.ID]; !kept {
			out = append(out, FieldChange{Path: expPath(e.ID, ""), Before: fmt.Sprintf("%s at %s", e.Role, e.Company)})
		}
	}
	return out
}

func diffEducation(old, new []EducationEntry) []FieldChange {
	var out []FieldChange
	oldByID := make(map[string]EducationEntry, len(old))
	for _, e := range old {
		oldByID[e.ID] = e
	}
	newIDs := make(map[string]struct{}, len(new))
	for _, e := range new {
		newIDs[e.ID] = struct{}{}
		prev, existed := oldByID[e.ID]
		if !existed {
			out = append(out, FieldChange{Path: eduPath(e.ID, ""), After: fmt.Sprintf("%s, %s", e.Degree, e.School)})
			continue
		}
		out = append(out, diffEntryFields(eduPath(e.ID, ""), []fieldPair{
			{"school", prev.School, e.School},
			{"degree", prev.Degree, e.Degree},
			{"duration", prev.Duration, e.Duration},
			{"notes", truncate(prev.Notes), truncate(e.Notes)},
		})...)
	}
	for _, e := range old {
		if _, kept := newIDs[e.ID]; !kept {
			out = append(out, FieldChange{Path: eduPath(e.ID, ""), Before: fmt.Sprintf("%s, %s", e.Degree, e.School)})
		}
	}
	return out
}

type fieldPair struct {
	name     string
	old, new string
}

func diffEntryFields(prefix string, fields []fieldPair) []FieldChange {
	var out []FieldChange
	for _, f := range fields {
		if f.old != f.new {
			out = append(out, FieldChange{Path: prefix + "." + f.name, Before: f.old, After: f.new})
		}
	}
	return out
}

func diffSkillList(path string, old, new []string) []FieldChange {
	var out []FieldChange
	oldSet := make(map[string]struct{}, len(old))
	for _, s := range old {
		oldSet[skillKey(s)] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(new))
	for _, s := range new {
		newSet[skillKey(s)] = struct{}{}
		if _, had := oldSet[skillKey(s)]; !had {
			out = append(out, FieldChange{Path: path, After: s})
		}
	}
	for _, s := range old {
		if _, kept := newSet[skillKey(s)]; !kept {
			out = append(out, FieldChange{Path: path, Before: s})
		}
	}
	return out
}

func expPath(id, field string) string {
	if field == "" {
		return "experience[" + id + "]"
	}
	return "experience[" + id + "]." + field
}

func eduPath(id, field string) string {
	if field == "" {
		return "education[" + id + "]"
	}
	return "education[" + id + "]." + field
}

// truncate caps long free text so ledger rows stay readable. The cut never
// splits a UTF-8 sequence.
func truncate(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
