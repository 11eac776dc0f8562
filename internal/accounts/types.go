// Package accounts stores the social accounts schedules publish to.
package accounts

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Platform identifies the site an account belongs to.
type Platform string

const (
	PlatformTikTok    Platform = "tiktok"
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
)

// Platforms lists every platform with a built-in driver.
var Platforms = []Platform{PlatformTikTok, PlatformFacebook, PlatformInstagram, PlatformYouTube}

// Account is one logged-in identity on a platform. Its browser profile lives at ProfilePath.
type Account struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Platform    Platform  `json:"platform"`
	DisplayName string    `json:"display_name"`
	ProfilePath string    `json:"profile_path"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks the user-supplied fields of an account.
func (a *Account) Validate() error {
	platforms := make([]any, len(Platforms))
	for i, p := range Platforms {
		platforms[i] = p
	}

	return validation.ValidateStruct(a,
		validation.Field(&a.OwnerID, validation.Required),
		validation.Field(&a.Platform, validation.Required, validation.In(platforms...)),
		validation.Field(&a.DisplayName, validation.Required, validation.Length(1, 100)),
	)
}
