package firebase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDevTokenVerifier(t *testing.T) {
	tests := []struct {
		token   string
		uid     string
		wantErr bool
	}{
		{token: "dev-user-1", uid: "user-1"},
		{token: "dev-", wantErr: true},
		{token: "user-1", wantErr: true},
		{token: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			uid, err := DevTokenVerifier{}.VerifyToken(context.Background(), tt.token)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDevToken)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.uid, uid)
		})
	}
}
