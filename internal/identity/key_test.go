package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		want    string
		wantErr error
	}{
		{name: "simple", email: "a@b.com", want: "a_b_com"},
		{name: "dotted local part", email: "first.last@mail.example.org", want: "first_last_mail_example_org"},
		{name: "no separators", email: "localonly", want: "localonly"},
		{name: "case kept", email: "A@B.COM", want: "A_B_COM"},
		{name: "whitespace kept", email: " a@b.com", want: " a_b_com"},
		{name: "empty", email: "", wantErr: ErrInvalidIdentity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Key(tt.email)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, got)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeyDeterministic(t *testing.T) {
	for _, email := range []string{"a@b.com", "x.y@z.io", "user+tag@host.co.uk"} {
		k1, err1 := Key(email)
		k2, err2 := Key(email)
		assert.NoError(t, err1)
		assert.NoError(t, err2)
		assert.Equal(t, k1, k2)
		assert.NotContains(t, k1, "@")
		assert.NotContains(t, k1, ".")
	}
}

func TestUserKey(t *testing.T) {
	k, err := User{Email: "a@b.com", Name: "A"}.Key()
	assert.NoError(t, err)
	assert.Equal(t, "a_b_com", k)

	_, err = User{Name: "nobody"}.Key()
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}
