package command

import (
	"fmt"
	"sort"
	"strings"

	"github.com/eaglelearn/account-api/shared/models"
)

type socialPlatform struct {
	urlStub string
	baseURL string
}

var socialPlatforms = map[string]socialPlatform{
	"facebook": {urlStub: "facebook.com", baseURL: "https://www.facebook.com/"},
	"twitter":  {urlStub: "twitter.com", baseURL: "https://twitter.com/"},
	"linkedin": {urlStub: "linkedin.com", baseURL: "https://www.linkedin.com/in/"},
}

// formatSocialLink normalises a submitted link. A bare username becomes the
// platform URL; an empty link stays empty and means "remove".
func formatSocialLink(platform, link string) (string, error) {
	p, ok := socialPlatforms[platform]
	if !ok {
		return "", fmt.Errorf("unsupported social platform %q", platform)
	}
	link = strings.TrimSpace(link)
	switch {
	case link == "":
		return "", nil
	case strings.Contains(link, p.urlStub):
		if !strings.Contains(link, "://") {
			link = "https://" + link
		}
		return link, nil
	case !strings.ContainsAny(link, "/:. \t"):
		return p.baseURL + link, nil
	default:
		return "", fmt.Errorf("make sure that you are providing a valid username or a URL that contains %q", p.urlStub)
	}
}

// mergeSocialLinks overlays submitted on existing by platform. Links that
// format to the empty string remove their platform.
func mergeSocialLinks(existing, submitted []models.SocialLink) ([]models.SocialLink, error) {
	byPlatform := make(map[string]string, len(existing)+len(submitted))
	for _, link := range existing {
		byPlatform[link.Platform] = link.SocialLink
	}
	for _, link := range submitted {
		formatted, err := formatSocialLink(link.Platform, link.SocialLink)
		if err != nil {
			return nil, err
		}
		if formatted == "" {
			delete(byPlatform, link.Platform)
			continue
		}
		byPlatform[link.Platform] = formatted
	}

	merged := make([]models.SocialLink, 0, len(byPlatform))
	for platform, link := range byPlatform {
		merged = append(merged, models.SocialLink{Platform: platform, SocialLink: link})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Platform < merged[j].Platform })
	return merged, nil
}
