package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhoneCandidates(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "full number with plus",
			raw:  "+5511999998888",
			want: []string{"5511999998888", "+5511999998888", "11999998888"},
		},
		{
			name: "full number bare",
			raw:  "5511999998888",
			want: []string{"5511999998888", "+5511999998888", "11999998888"},
		},
		{
			name: "local number gains country code",
			raw:  "11999998888",
			want: []string{"11999998888", "+11999998888", "5511999998888"},
		},
		{
			name: "formatted input",
			raw:  "+55 (11) 99999-8888",
			want: []string{"5511999998888", "+5511999998888", "11999998888"},
		},
		{
			name: "empty",
			raw:  "  ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PhoneCandidates(tt.raw))
		})
	}
}

func TestPhoneCandidates_CrossMatch(t *testing.T) {
	// A lead stored as "5511999998888" must be reachable from both the
	// "+"-prefixed and the country-code-less inbound forms.
	stored := "5511999998888"

	assert.Contains(t, PhoneCandidates("+5511999998888"), stored)
	assert.Contains(t, PhoneCandidates("11999998888"), stored)
}
