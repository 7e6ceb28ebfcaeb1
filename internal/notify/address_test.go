package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr error
	}{
		{name: "bare address", in: "jane@example.com"},
		{name: "no at sign", in: "jane", wantErr: ErrInvalidAddress},
		{name: "display name", in: "Jane <jane@example.com>", wantErr: ErrInvalidAddress},
		{name: "list", in: "jane@example.com, eve@example.org", wantErr: ErrInvalidAddress},
		{name: "crlf header", in: "eve@example.com\r\nBcc: victim3@example.org", wantErr: ErrLineBreak},
		{name: "bare lf", in: "eve@example.com\nBcc: victim3@example.org", wantErr: ErrLineBreak},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.in)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCheckHeaderText(t *testing.T) {
	assert.NoError(t, CheckHeaderText("Jane Doe"))
	assert.ErrorIs(t, CheckHeaderText("Eve\r\nBcc: victim1@example.org"), ErrLineBreak)
	assert.ErrorIs(t, CheckHeaderText("Eve\rBcc"), ErrLineBreak)
}
