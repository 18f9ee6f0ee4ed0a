package service

import (
	"testing"

	"github.com/sakif/bookworm/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildProfilePatch(t *testing.T) {
	current := &model.User{Username: "alice", Email: "alice@example.com"}

	tests := []struct {
		name         string
		update       ProfileUpdate
		wantUsername string // "" means absent
		wantEmail    string
	}{
		{name: "nothing supplied", update: ProfileUpdate{}},
		{name: "same username dropped", update: ProfileUpdate{Username: "alice"}},
		{name: "same username after trim dropped", update: ProfileUpdate{Username: "  alice "}},
		{name: "same email other case dropped", update: ProfileUpdate{Email: "ALICE@Example.com"}},
		{name: "whitespace-only treated as absent", update: ProfileUpdate{Username: "   ", Email: " "}},
		{name: "new username kept", update: ProfileUpdate{Username: " alicia "}, wantUsername: "alicia"},
		{name: "new email lower-cased", update: ProfileUpdate{Email: "New@Example.com"}, wantEmail: "new@example.com"},
		{
			name:         "both changed",
			update:       ProfileUpdate{Username: "bob", Email: "bob@example.com"},
			wantUsername: "bob",
			wantEmail:    "bob@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch := BuildProfilePatch(tt.update, current)

			if tt.wantUsername == "" {
				assert.Nil(t, patch.Username)
			} else {
				require.NotNil(t, patch.Username)
				assert.Equal(t, tt.wantUsername, *patch.Username)
			}
			if tt.wantEmail == "" {
				assert.Nil(t, patch.Email)
			} else {
				require.NotNil(t, patch.Email)
				assert.Equal(t, tt.wantEmail, *patch.Email)
			}
			assert.Nil(t, patch.ProfileImage, "photo is never part of the built patch")
		})
	}
}

func TestProfilePatch_Helpers(t *testing.T) {
	var p ProfilePatch
	assert.True(t, p.Empty())
	assert.False(t, p.ChangesIdentity())

	withImage := p.WithProfileImage("https://cdn.test/x")
	assert.True(t, p.Empty(), "WithProfileImage does not modify the receiver")
	assert.False(t, withImage.Empty())
	assert.False(t, withImage.ChangesIdentity())

	name := "bob"
	p.Username = &name
	assert.True(t, p.ChangesIdentity())

	fields := withImage.Fields()
	require.NotNil(t, fields.ProfileImage)
	assert.Equal(t, "https://cdn.test/x", *fields.ProfileImage)
	assert.Nil(t, fields.Username)
}
