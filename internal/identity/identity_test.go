package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_Validate(t *testing.T) {
	v, err := NewValidator(`^[0-9]{9}$`, []int64{202099999, 202288888})
	require.NoError(t, err)

	testCases := []struct {
		name      string
		id        int64
		expectErr bool
	}{
		{name: "Nine digits", id: 202312345},
		{name: "Denylisted", id: 202099999, expectErr: true},
		{name: "Second denylisted", id: 202288888, expectErr: true},
		{name: "Too short", id: 2023123, expectErr: true},
		{name: "Too long", id: 2023123456, expectErr: true},
		{name: "Zero", id: 0, expectErr: true},
		{name: "Negative", id: -202312345, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(tc.id)
			if tc.expectErr {
				assert.ErrorIs(t, err, ErrInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewValidator_BadPattern(t *testing.T) {
	_, err := NewValidator(`[`, nil)
	assert.Error(t, err)
}
