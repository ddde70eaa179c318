package configuration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseState(t *testing.T) {
	tests := []struct {
		in      string
		want    State
		wantErr bool
	}{
		{"", StateActive, false},
		{"active", StateActive, false},
		{" DEACTIVATED ", StateDeactivated, false},
		{"paused", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseState(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizedDefaults(t *testing.T) {
	sms := SMSConfiguration{Identifier: "twilio"}.Normalized()
	assert.True(t, sms.IsActive())
	assert.Equal(t, "twilio", sms.Key())

	email := EmailConfiguration{Identifier: "gmail", Protocol: "smtps", State: StateDeactivated}.Normalized()
	assert.False(t, email.IsActive())
	assert.Equal(t, "smtps", email.Protocol)

	assert.Equal(t, "smtp", EmailConfiguration{}.Normalized().Protocol)
}
