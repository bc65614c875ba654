package resume

import (
	"fmt"
	"regexp"
	"strings"
)

var spaceRun = regexp.MustCompile(`\s+`)

// NormalizeSkill trims and collapses internal whitespace. Returns "" for
// blank input.
func NormalizeSkill(s string) string {
	return spaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
}

// skillKey is the case-insensitive identity used for dedup and removal.
func skillKey(s string) string {
	return strings.ToLower(NormalizeSkill(s))
}

// MergeSkills appends the incoming skills to existing, normalizing each and
// dropping case-insensitive duplicates. The first-seen casing wins. Returns
// the merged list and the normalized values that were actually added.
func MergeSkills(existing, incoming []string) (merged, added []string) {
	merged = append([]string(nil), existing...)
	seen := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		seen[skillKey(s)] = struct{}{}
	}
	for _, s := range incoming {
		norm := NormalizeSkill(s)
		if norm == "" {
			continue
		}
		key := strings.ToLower(norm)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, norm)
		added = append(added, norm)
	}
	return merged, added
}

// RemoveSkills drops the named skills from existing, matching
// case-insensitively. Returns the remaining list and the values removed as
// they were stored.
func RemoveSkills(existing, targets []string) (remaining, removed []string) {
	drop := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if key := skillKey(t); key != "" {
			drop[key] = struct{}{}
		}
	}
	for _, s := range existing {
		if _, hit := drop[skillKey(s)]; hit {
			removed = append(removed, s)
			continue
		}
		remaining = append(remaining, s)
	}
	return remaining, removed
}

// ValidSkillCategory reports whether c names one of the two skill lists.
func ValidSkillCategory(c string) bool {
	return c == SkillTechnical || c == SkillSoft
}

// Duration strings follow "<start> - <end>" where each endpoint is an
// optional month name plus a 4-digit year, and the end may instead be
// Present or Current.
var durationSep = regexp.MustCompile(`\s*[-–]\s*`)

var durationPattern = regexp.MustCompile(
	`^(?i)(?:(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\.?\s+)?\d{4}\s*[-–]\s*(?:(?:(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\.?\s+)?\d{4}|Present|Current)$`)

// NormalizeDuration validates and canonicalizes a duration range. Whitespace
// is collapsed and the separator becomes " - ".
func NormalizeDuration(s string) (string, error) {
	norm := spaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
	if norm == "" {
		return "", fmt.Errorf("duration is required")
	}
	if !durationPattern.MatchString(norm) {
		return "", fmt.Errorf("duration %q: want \"<start> - <end>\" with month-year endpoints or Present", s)
	}
	parts := durationSep.Split(norm, 2)
	return parts[0] + " - " + parts[1], nil
}
