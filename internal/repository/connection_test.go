package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientOptions_PoolSize(t *testing.T) {
	tests := []struct {
		name    string
		pool    PoolSize
		wantMax uint64
		wantMin uint64
	}{
		{"defaults", PoolSize{}, 100, 10},
		{"configured", PoolSize{Max: 20, Min: 2}, 20, 2},
		{"small max caps default min", PoolSize{Max: 4}, 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := clientOptions("mongodb://localhost:27017", tt.pool)

			require.NotNil(t, opts.MaxPoolSize)
			require.NotNil(t, opts.MinPoolSize)
			assert.Equal(t, tt.wantMax, *opts.MaxPoolSize)
			assert.Equal(t, tt.wantMin, *opts.MinPoolSize)
		})
	}
}
