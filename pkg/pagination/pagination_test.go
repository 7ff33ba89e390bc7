package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		page      int
		limit     int
		wantPage  int
		wantLimit int
	}{
		{"defaults", 0, 0, 1, 20},
		{"negative", -3, -1, 1, 20},
		{"capped", 2, 500, 2, 100},
		{"passthrough", 3, 15, 3, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.page, tt.limit)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantLimit, p.Limit)
		})
	}
}

func TestOffsetAndTotalPages(t *testing.T) {
	p := New(3, 10)

	assert.Equal(t, 20, p.Offset())
	assert.Equal(t, 0, p.TotalPages(0))
	assert.Equal(t, 1, p.TotalPages(10))
	assert.Equal(t, 2, p.TotalPages(11))
}

func TestParse(t *testing.T) {
	p, err := Parse("2", "5")
	require.NoError(t, err)
	assert.Equal(t, Params{Page: 2, Limit: 5}, p)

	p, err = Parse("", "")
	require.NoError(t, err)
	assert.Equal(t, Params{Page: 1, Limit: 20}, p)

	_, err = Parse("two", "")
	assert.Error(t, err)
}
