package visibility

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ImageSizes maps each profile image size name to its edge in pixels.
var ImageSizes = map[string]int{
	"full":   500,
	"large":  120,
	"medium": 50,
	"small":  30,
}

type ProfileImage struct {
	HasImage bool   `json:"has_image"`
	Full     string `json:"image_url_full"`
	Large    string `json:"image_url_large"`
	Medium   string `json:"image_url_medium"`
	Small    string `json:"image_url_small"`
}

// ImageName is the storage name of a user's uploaded profile image.
func ImageName(username string) string {
	sum := sha256.Sum256([]byte(username))
	return hex.EncodeToString(sum[:])[:32]
}

// ProfileImage builds the image URLs for username. A nil uploadedAt selects
// the default images.
func (p *Policy) ProfileImage(username string, uploadedAt *time.Time) ProfileImage {
	url := func(size string) string {
		px := ImageSizes[size]
		if uploadedAt == nil {
			return fmt.Sprintf("%s_%d.png", p.cfg.ProfileImageDefaultURL, px)
		}
		return fmt.Sprintf("%s/%s_%d.jpg?v=%d",
			strings.TrimSuffix(p.cfg.ProfileImageBaseURL, "/"), ImageName(username), px, uploadedAt.Unix())
	}
	return ProfileImage{
		HasImage: uploadedAt != nil,
		Full:     url("full"),
		Large:    url("large"),
		Medium:   url("medium"),
		Small:    url("small"),
	}
}
