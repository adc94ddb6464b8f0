package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-wms/auth"
)

func TestParseLifetime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"7d", 7 * 24 * time.Hour},
		{"30d", 30 * 24 * time.Hour},
		{"2w", 14 * 24 * time.Hour},
		{"12h", 12 * time.Hour},
		{"90m", 90 * time.Minute},
		{"3600", time.Hour},
		{" 1.5d ", 36 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := auth.ParseLifetime(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLifetime_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "0", "-5", "-1d", "xd", "0s"} {
		_, err := auth.ParseLifetime(in)
		assert.Error(t, err, in)
	}
}

func TestParseLifetime_OutOfRange(t *testing.T) {
	for _, in := range []string{"300000d", "9223372037", "20000w", "Infd", "NaNd", "9999999999h"} {
		t.Run(in, func(t *testing.T) {
			got, err := auth.ParseLifetime(in)
			assert.Error(t, err)
			assert.Zero(t, got)
		})
	}

	got, err := auth.ParseLifetime("106751d")
	require.NoError(t, err)
	assert.Positive(t, got)
}
