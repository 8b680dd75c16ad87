package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/outreach-backend/internal/model"
)

func TestRenderTemplate(t *testing.T) {
	out := RenderTemplate("Hi {first_name} {first_name}, {unknown}", map[string]string{"first_name": "Ada"})
	assert.Equal(t, "Hi Ada Ada, {unknown}", out)
}

func TestRenderTemplate_ValuesAreNotExpanded(t *testing.T) {
	data := map[string]string{
		"name":       "{headline}",
		"first_name": "{name}",
		"headline":   "CTO",
	}
	for range 50 {
		out := RenderTemplate("{first_name} / {name} / {headline}", data)
		assert.Equal(t, "{name} / {headline} / CTO", out)
	}
}

func TestUserPlaceholders(t *testing.T) {
	tests := []struct {
		name      string
		user      model.User
		wantFirst string
	}{
		{"full name", model.User{Name: "Ada Lovelace"}, "Ada"},
		{"single name", model.User{Name: "Cher"}, "Cher"},
		{"padded", model.User{Name: "  Grace Hopper "}, "Grace"},
		{"empty", model.User{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantFirst, UserPlaceholders(tt.user)["first_name"])
		})
	}
}
