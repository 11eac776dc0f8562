package drivers

import (
	"time"

	"github.com/watzon/clipcast/internal/accounts"
	"github.com/watzon/clipcast/internal/publisher"
)

// TikTok posts through the web upload page.
var TikTok = Flow{
	Name:      string(accounts.PlatformTikTok),
	UploadURL: "https://www.tiktok.com/upload",
	FileInput: `input[type="file"]`,
	Caption:   `div[contenteditable="true"]`,
	Submit:    `button[data-e2e="post_video_button"]`,
	Confirm:   `div[data-e2e="upload-success"]`,
	Settle:    2 * time.Second,
}

// Facebook posts a video to the signed-in user's feed.
var Facebook = Flow{
	Name:      string(accounts.PlatformFacebook),
	UploadURL: "https://www.facebook.com",
	Open:      []string{`div[aria-label="Photo/video"]`},
	FileInput: `input[type="file"][accept*="video"]`,
	Caption:   `div[role="dialog"] div[contenteditable="true"]`,
	Submit:    `div[role="dialog"] div[aria-label="Post"]`,
	Confirm:   `div[role="alert"]`,
}

// Instagram shares a reel from the create dialog.
var Instagram = Flow{
	Name:      string(accounts.PlatformInstagram),
	UploadURL: "https://www.instagram.com",
	Open:      []string{`svg[aria-label="New post"]`},
	FileInput: `form[enctype="multipart/form-data"] input[type="file"]`,
	BeforeCaption: []string{
		`div[role="dialog"] div[role="button"][data-step="crop-next"]`,
		`div[role="dialog"] div[role="button"][data-step="edit-next"]`,
	},
	Caption: `div[aria-label="Write a caption..."]`,
	Submit:  `div[role="dialog"] div[role="button"][data-step="share"]`,
	Confirm: `img[alt="Animated checkmark"]`,
}

// YouTube uploads through Studio. The caption becomes the video title.
var YouTube = Flow{
	Name:      string(accounts.PlatformYouTube),
	UploadURL: "https://studio.youtube.com",
	Open:      []string{`#create-icon`, `#text-item-0`},
	FileInput: `input[type="file"]`,
	Caption:   `#title-textarea #textbox`,
	AfterCaption: []string{
		`tp-yt-paper-radio-button[name="VIDEO_MADE_FOR_KIDS_NOT_MFK"]`,
		`#next-button`,
		`#next-button`,
		`#next-button`,
		`tp-yt-paper-radio-button[name="PUBLIC"]`,
	},
	Submit:  `#done-button`,
	Confirm: `ytcp-video-share-dialog`,
}

// Builtin returns a driver per supported platform.
func Builtin() []publisher.Driver {
	return []publisher.Driver{TikTok, Facebook, Instagram, YouTube}
}

// LoginURL returns the page to open when signing a fresh profile in to platform.
func LoginURL(platform string) (string, bool) {
	for _, d := range Builtin() {
		if f, ok := d.(Flow); ok && f.Name == platform {
			return f.UploadURL, true
		}
	}
	return "", false
}
