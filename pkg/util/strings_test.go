package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIntDefault(t *testing.T) {
	tests := []struct {
		in   string
		def  int
		want int
	}{
		{"", 7, 7},
		{"42", 7, 42},
		{"-3", 7, -3},
		{"4x", 7, 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseIntDefault(tt.in, tt.def), "input %q", tt.in)
	}
}

func TestParseFloatDefault(t *testing.T) {
	assert.Equal(t, 0.85, ParseFloatDefault("", 0.85))
	assert.Equal(t, 0.7, ParseFloatDefault("0.7", 0.85))
	assert.Equal(t, 0.85, ParseFloatDefault("high", 0.85))
}
