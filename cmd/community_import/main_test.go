package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddresses(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{
			name:  "lines",
			input: "# holders\n0xAA\n\n  0xbb  \n",
			want:  []string{"0xAA", "0xbb"},
		},
		{
			name:  "json array",
			input: ` ["0xaa", "0xbb"]`,
			want:  []string{"0xaa", "0xbb"},
		},
		{
			name:    "broken json",
			input:   `["0xaa",`,
			wantErr: true,
		},
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAddresses([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
