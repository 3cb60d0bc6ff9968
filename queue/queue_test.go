package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractRIDType(t *testing.T) {
	tests := []struct {
		name     string
		rid      string
		wantType string
		wantOK   bool
	}{
		{"koi-net form", "orn:koi-net.practice:slug+hash", "Practice", true},
		{"entity form", "orn:entity:bioregion/slug+hash", "Bioregion", true},
		{"already mixed case", "orn:koi-net.CaseStudy:slug+hash", "Casestudy", true},
		{"neither form", "orn:something-else:slug+hash", "", false},
		{"empty type segment koi-net", "orn:koi-net.:slug+hash", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractRIDType(tt.rid)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantType, got)
		})
	}
}

func TestContains(t *testing.T) {
	assert.True(t, contains([]string{"Practice", "Pattern"}, "Pattern"))
	assert.False(t, contains([]string{"Practice"}, "Bioregion"))
	assert.False(t, contains(nil, "Practice"))
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Practice", titleCase("practice"))
	assert.Equal(t, "Practice", titleCase("PRACTICE"))
	assert.Equal(t, "", titleCase(""))
}
