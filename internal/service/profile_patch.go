package service

import (
	"strings"

	"github.com/sakif/bookworm/internal/model"
	"github.com/sakif/bookworm/internal/repository"
)

// ProfileUpdate is what the caller asked to change. Empty strings mean the
// field was not supplied. Photo is the raw uploaded file, nil when absent.
type ProfileUpdate struct {
	Username string
	Email    string
	Photo    []byte

	// Set only so the request can be rejected; never applied here.
	Password        string
	PasswordConfirm string
}

// HasPassword reports whether any password field was supplied.
func (u ProfileUpdate) HasPassword() bool {
	return u.Password != "" || u.PasswordConfirm != ""
}

// ProfilePatch is the minimal set of columns a profile update writes.
// A nil field is left as stored.
type ProfilePatch struct {
	Username     *string `json:"username,omitempty" validate:"omitempty,min=3,max=30"`
	Email        *string `json:"email,omitempty" validate:"omitempty,email"`
	ProfileImage *string `json:"profileImage,omitempty"`
}

var patchMessages = messages{
	"username.min": "Username should be at least 3 characters long",
	"username.max": "Username should be at most 30 characters long",
	"email.email":  "Please provide a valid email",
}

// BuildProfilePatch keeps only the supplied fields that differ from current.
// Username is trimmed; email is trimmed and lower-cased before comparing.
// The photo is not part of the patch until it has been uploaded.
func BuildProfilePatch(update ProfileUpdate, current *model.User) ProfilePatch {
	var patch ProfilePatch

	if username := strings.TrimSpace(update.Username); username != "" && username != current.Username {
		patch.Username = &username
	}
	if email := strings.ToLower(strings.TrimSpace(update.Email)); email != "" && email != current.Email {
		patch.Email = &email
	}
	return patch
}

// Empty reports whether applying the patch would change nothing.
func (p ProfilePatch) Empty() bool {
	return p.Username == nil && p.Email == nil && p.ProfileImage == nil
}

// ChangesIdentity reports whether a uniqueness check is needed.
func (p ProfilePatch) ChangesIdentity() bool {
	return p.Username != nil || p.Email != nil
}

// WithProfileImage returns a copy of p that also sets the profile image.
func (p ProfilePatch) WithProfileImage(url string) ProfilePatch {
	p.ProfileImage = &url
	return p
}

// Fields converts the patch to the repository's column set.
func (p ProfilePatch) Fields() repository.ProfileFields {
	return repository.ProfileFields{
		Username:     p.Username,
		Email:        p.Email,
		ProfileImage: p.ProfileImage,
	}
}
