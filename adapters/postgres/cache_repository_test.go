package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStudyOf(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"confounding-0011223344556677", "confounding"},
		{"coverage-8899aabbccddeeff", "coverage"},
		{"nohash", "nohash"},
		{"-leading", "-leading"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, studyOf(tt.key), tt.key)
	}
}
