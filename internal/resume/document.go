package resume

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Section names accepted by read/search operations.
const (
	SectionContact    = "contact"
	SectionSummary    = "summary"
	SectionExperience = "experience"
	SectionSkills     = "skills"
	SectionEducation  = "education"
)

// Contact is the identity header of a document.
type Contact struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Location string `json:"location,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
	Website  string `json:"website,omitempty"`
}

// ExperienceEntry is one work history item. Entries are addressed by ID,
// never by array position.
type ExperienceEntry struct {
	ID          string `json:"id"`
	Company     string `json:"company"`
	Role        string `json:"role"`
	Duration    string `json:"duration"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
}

// EducationEntry is one education item, addressed by ID like experience.
type EducationEntry struct {
	ID       string `json:"id"`
	School   string `json:"school"`
	Degree   string `json:"degree"`
	Duration string `json:"duration"`
	Notes    string `json:"notes,omitempty"`
}

// Skills holds the two disjoint skill sets. Values are case-preserving but
// deduplicated case-insensitively.
type Skills struct {
	Technical []string `json:"technical"`
	Soft      []string `json:"soft"`
}

// Skill categories.
const (
	SkillTechnical = "technical"
	SkillSoft      = "soft"
)

// Document is the versioned resume owned by one user. Version increments by
// exactly 1 on every structural edit; version 0 means "no document yet".
type Document struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Version    int64             `json:"version"`
	Contact    Contact           `json:"contact"`
	Summary    string            `json:"summary"`
	Experience []ExperienceEntry `json:"experience"`
	Skills     Skills            `json:"skills"`
	Education  []EducationEntry  `json:"education"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Empty returns the zero-version document for a user who has not edited yet.
// Callers treat this as a valid starting point, never as an error state.
func Empty(userID string) Document {
	return Document{UserID: userID, Version: 0}
}

// Clone returns a deep copy so mutations never alias the caller's slices.
func (d Document) Clone() Document {
	out := d
	out.Experience = append([]ExperienceEntry(nil), d.Experience...)
	out.Education = append([]EducationEntry(nil), d.Education...)
	out.Skills.Technical = append([]string(nil), d.Skills.Technical...)
	out.Skills.Soft = append([]string(nil), d.Skills.Soft...)
	return out
}

// ExperienceByID returns the index of the entry with the given id, or -1.
func (d Document) ExperienceByID(id string) int {
	for i, e := range d.Experience {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// EducationByID returns the index of the entry with the given id, or -1.
func (d Document) EducationByID(id string) int {
	for i, e := range d.Education {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// SectionView is a read-only projection of one section.
type SectionView struct {
	Section      string      `json:"section"`
	Data         interface{} `json:"data"`
	LastModified time.Time   `json:"last_modified"`
}

// Section projects one named section of the document.
func (d Document) Section(name string) (SectionView, error) {
	view := SectionView{Section: strings.ToLower(strings.TrimSpace(name)), LastModified: d.UpdatedAt}
	switch view.Section {
	case SectionContact:
		view.Data = d.Contact
	case SectionSummary:
		view.Data = d.Summary
	case SectionExperience:
		view.Data = d.Experience
	case SectionSkills:
		view.Data = d.Skills
	case SectionEducation:
		view.Data = d.Education
	default:
		return SectionView{}, fmt.Errorf("unknown section: %s", name)
	}
	return view, nil
}

// SectionNames lists the valid section names in display order.
func SectionNames() []string {
	return []string{SectionContact, SectionSummary, SectionExperience, SectionSkills, SectionEducation}
}

// Outline is the token-cheap structure summary handed to the model instead of
// the full document body.
type Outline struct {
	Exists       bool            `json:"exists"`
	Version      int64           `json:"version"`
	Sections     map[string]bool `json:"sections"`
	Experience   int             `json:"experience_count"`
	Education    int             `json:"education_count"`
	Technical    int             `json:"technical_skill_count"`
	Soft         int             `json:"soft_skill_count"`
	LastModified *time.Time      `json:"last_modified,omitempty"`
}

// Outline builds the structure summary for context assembly.
func (d Document) Outline() Outline {
	o := Outline{
		Exists:  d.Version > 0,
		Version: d.Version,
		Sections: map[string]bool{
			SectionContact:    d.Contact.Name != "" || d.Contact.Email != "",
			SectionSummary:    d.Summary != "",
			SectionExperience: len(d.Experience) > 0,
			SectionSkills:     len(d.Skills.Technical)+len(d.Skills.Soft) > 0,
			SectionEducation:  len(d.Education) > 0,
		},
		Experience: len(d.Experience),
		Education:  len(d.Education),
		Technical:  len(d.Skills.Technical),
		Soft:       len(d.Skills.Soft),
	}
	if !d.UpdatedAt.IsZero() {
		t := d.UpdatedAt
		o.LastModified = &t
	}
	return o
}

// MarshalBody serializes the mutable body (everything except store metadata)
// for persistence in a single JSONB column.
func (d Document) MarshalBody() ([]byte, error) {
	body := struct {
		Contact    Contact           `json:"contact"`
		Summary    string            `json:"summary"`
		Experience []ExperienceEntry `json:"experience"`
		Skills     Skills            `json:"skills"`
		Education  []EducationEntry  `json:"education"`
	}{d.Contact, d.Summary, d.Experience, d.Skills, d.Education}
	return json.Marshal(body)
}

// UnmarshalBody fills the mutable body from its persisted JSON form.
func (d *Document) UnmarshalBody(raw []byte) error {
	var body struct {
		Contact    Contact           `json:"contact"`
		Summary    string            `json:"summary"`
		Experience []ExperienceEntry `json:"experience"`
		Skills     Skills            `json:"skills"`
		Education  []EducationEntry  `json:"education"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return fmt.Errorf("unmarshal document body: %w", err)
	}
	d.Contact = body.Contact
	d.Summary = body.Summary
	d.Experience = body.Experience
	d.Skills = body.Skills
	d.Education = body.Education
	return nil
}
