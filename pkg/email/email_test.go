package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "dr.lee@example.com", Normalize("  Dr.Lee@Example.COM "))
}

func TestIsValid(t *testing.T) {
	valid := []string{"a@b.co", "dr.lee+intake@clinic.example.org"}
	invalid := []string{"", "no-at-sign", "a@localhost", "Name <a@b.co>", "a@b.co ", "@b.co"}

	for _, e := range valid {
		assert.True(t, IsValid(e), e)
	}
	for _, e := range invalid {
		assert.False(t, IsValid(e), e)
	}
}

func TestDeriveNameFromEmail(t *testing.T) {
	tests := []struct {
		email string
		first string
		last  string
	}{
		{"jane.doe@example.com", "Jane", "Doe"},
		{"jane@example.com", "Jane", "User"},
		{"jane_m_doe@example.com", "Jane", "Doe"},
		{"...@example.com", "User", "User"},
	}
	for _, tt := range tests {
		first, last := DeriveNameFromEmail(tt.email)
		assert.Equal(t, tt.first, first, tt.email)
		assert.Equal(t, tt.last, last, tt.email)
	}
}
