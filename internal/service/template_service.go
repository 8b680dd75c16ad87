package service

import (
	"maps"
	"slices"
	"strings"

	"github.com/unclebandit/outreach-backend/internal/model"
)

// RenderTemplate replaces each {key} in template with its value in one pass.
// Placeholders that appear inside substituted values are left as they are.
func RenderTemplate(template string, data map[string]string) string {
	pairs := make([]string, 0, 2*len(data))
	for _, k := range slices.Sorted(maps.Keys(data)) {
		pairs = append(pairs, "{"+k+"}", data[k])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// UserPlaceholders returns the values substituted into connection and
// follow-up messages.
func UserPlaceholders(u model.User) map[string]string {
	name := strings.TrimSpace(u.Name)
	first := name
	if i := strings.IndexByte(name, ' '); i > 0 {
		first = name[:i]
	}
	return map[string]string{
		"name":       name,
		"first_name": first,
		"headline":   u.Headline,
	}
}
