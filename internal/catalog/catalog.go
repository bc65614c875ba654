package catalog

// Operation names surfaced to the model.
const (
	OpResumeRead        = "resume_read"
	OpResumeReadSection = "resume_read_section"
	OpSummaryUpdate     = "summary_update"
	OpContactUpdate     = "contact_update"
	OpExperienceAdd     = "experience_add"
	OpExperienceUpdate  = "experience_update"
	OpExperienceRemove  = "experience_remove"
	OpEducationAdd      = "education_add"
	OpEducationUpdate   = "education_update"
	OpEducationRemove   = "education_remove"
	OpSkillsAdd         = "skills_add"
	OpSkillsRemove      = "skills_remove"
	OpResumeSearch      = "resume_search"
)

// OpDesc describes one operation to the model: name, guidance, and the JSON
// schema of its arguments.
type OpDesc struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
	Mutating    bool           `json:"-"`
}

// Catalog lists every operation the dispatcher accepts. Order is the order
// advertised to the model.
func Catalog() []OpDesc {
	return []OpDesc{
		{
			Name:        OpResumeRead,
			Description: "Read the full resume document, including its current version.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        OpResumeReadSection,
			Description: "Read one section of the resume: contact, summary, experience, skills, or education.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"section": map[string]any{"type": "string", "enum": []string{"contact", "summary", "experience", "skills", "education"}},
				},
				"required": []string{"section"},
			},
		},
		{
			Name:        OpSummaryUpdate,
			Description: "Replace the professional summary with new text.",
			Mutating:    true,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"summary": map[string]any{"type": "string", "minLength": 1},
				},
				"required": []string{"summary"},
			},
		},
		{
			Name:        OpContactUpdate,
			Description: "Update contact header fields. Omitted fields are left unchanged.",
			Mutating:    true,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":     map[string]any{"type": "string"},
					"title":    map[string]any{"type": "string"},
					"email":    map[string]any{"type": "string"},
					"phone":    map[string]any{"type": "string"},
					"location": map[string]any{"type": "string"},
					"linkedin": map[string]any{"type": "string"},
					"website":  map[string]any{"type": "string"},
				},
			},
		},
		{
			Name:        OpExperienceAdd,
			Description: "Add a work experience entry. The new entry's id is returned.",
			Mutating:    true,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"company":     map[string]any{"type": "string", "minLength": 1},
					"role":        map[string]any{"type": "string", "minLength": 1},
					"duration":    map[string]any{"type": "string", "description": "e.g. \"Jan 2020 - Present\" or \"2018 - 2021\""},
					"description": map[string]any{"type": "string"},
					"location":    map[string]any{"type": "string"},
				},
				"required": []string{"company", "role", "duration"},
			},
		},
		{
			Name:        OpExperienceUpdate,
			Description: "Update fields of an existing experience entry, addressed by its id from resume_read.",
			Mutating:    true,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":          map[string]any{"type": "string"},
					"company":     map[string]any{"type": "string"},
					"role":        map[string]any{"type": "string"},
					"duration":    map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"location":    map[string]any{"type": "string"},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        OpExperienceRemove,
			Description: "Remove an experience entry by id.",
			Mutating:    true,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{"type": "string"},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        OpEducationAdd,
			Description: "Add an education entry.",
			Mutating:    true,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"school":   map[string]any{"type": "string", "minLength": 1},
					"degree":   map[string]any{"type": "string", "minLength": 1},
					"duration": map[string]any{"type": "string"},
					"notes":    map[string]any{"type": "string"},
				},
				"required": []string{"school", "degree", "duration"},
			},
		},
		{
			Name:        OpEducationUpdate,
			Description: "Update fields of an existing education entry by id.",
			Mutating:    true,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":       map[string]any{"type": "string"},
					"school":   map[string]any{"type": "string"},
					"degree":   map[string]any{"type": "string"},
					"duration": map[string]any{"type": "string"},
					"notes":    map[string]any{"type": "string"},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        OpEducationRemove,
			Description: "Remove an education entry by id.",
			Mutating:    true,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{"type": "string"},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        OpSkillsAdd,
			Description: "Add skills to the technical or soft list. Duplicates are ignored case-insensitively.",
			Mutating:    true,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"category": map[string]any{"type": "string", "enum": []string{"technical", "soft"}},
					"skills":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 1},
				},
				"required": []string{"category", "skills"},
			},
		},
		{
			Name:        OpSkillsRemove,
			Description: "Remove skills from the technical or soft list, matched case-insensitively.",
			Mutating:    true,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"category": map[string]any{"type": "string", "enum": []string{"technical", "soft"}},
					"skills":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 1},
				},
				"required": []string{"category", "skills"},
			},
		},
		{
			Name:        OpResumeSearch,
			Description: "Full-text search across resume sections. Read-only; returns matching sections with snippets.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "minLength": 1},
					"k":     map[string]any{"type": "integer", "minimum": 1, "maximum": 10},
				},
				"required": []string{"query"},
			},
		},
	}
}

// Lookup returns the descriptor for name.
func Lookup(name string) (OpDesc, bool) {
	for _, d := range Catalog() {
		if d.Name == name {
			return d, true
		}
	}
	return OpDesc{}, false
}
