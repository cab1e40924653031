package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsMonotonic(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestEntityPrefixes(t *testing.T) {
	tests := []struct {
		prefix string
		gen    func() string
	}{
		{"sim_", Simulation},
		{"acc_", Account},
		{"ord_", Order},
		{"pos_", Position},
		{"trd_", Trade},
		{"pnd_", PendingOrder},
	}
	for _, tt := range tests {
		got := tt.gen()
		assert.True(t, strings.HasPrefix(got, tt.prefix), got)
		assert.Len(t, got, len(tt.prefix)+26)
	}
}
