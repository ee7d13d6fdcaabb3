package provider

import (
	"regexp"
	"strings"

	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
)

// ExtractedHandle is one cross-platform reference found in free-form text.
type ExtractedHandle struct {
	Platform identitydomain.Platform
	Handle   string
}

var linkPatterns = []struct {
	platform identitydomain.Platform
	re       *regexp.Regexp
}{
	{identitydomain.PlatformTwitch, regexp.MustCompile(`(?i)twitch\.tv/([A-Za-z0-9_]{3,25})`)},
	{identitydomain.PlatformYouTube, regexp.MustCompile(`(?i)youtube\.com/@([A-Za-z0-9_.-]{3,30})`)},
	{identitydomain.PlatformTwitter, regexp.MustCompile(`(?i)(?:twitter|x)\.com/([A-Za-z0-9_]{1,15})`)},
	{identitydomain.PlatformInstagram, regexp.MustCompile(`(?i)instagram\.com/([A-Za-z0-9_.]{1,30})`)},
	{identitydomain.PlatformTikTok, regexp.MustCompile(`(?i)tiktok\.com/@([A-Za-z0-9_.]{2,24})`)},
	{identitydomain.PlatformKick, regexp.MustCompile(`(?i)kick\.com/([A-Za-z0-9_]{3,25})`)},
}

// reservedPaths are site path segments the profile patterns would otherwise
// match. Anything listed here is never a creator handle.
var reservedPaths = map[string]struct{}{
	"about":     {},
	"directory": {},
	"downloads": {},
	"explore":   {},
	"help":      {},
	"home":      {},
	"i":         {},
	"intent":    {},
	"jobs":      {},
	"legal":     {},
	"login":     {},
	"p":         {},
	"privacy":   {},
	"reels":     {},
	"search":    {},
	"settings":  {},
	"share":     {},
	"signup":    {},
	"stories":   {},
	"terms":     {},
	"videos":    {},
	"watch":     {},
}

// ExtractHandles scans free-form profile text for links to other platforms
// and returns the referenced handles, deduplicated in order of appearance.
func ExtractHandles(text string) []ExtractedHandle {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []ExtractedHandle
	seen := map[string]struct{}{}
	for _, pattern := range linkPatterns {
		for _, match := range pattern.re.FindAllStringSubmatch(text, -1) {
			handle := identitydomain.NormalizeHandle(match[1])
			if handle == "" {
				continue
			}
			if _, reserved := reservedPaths[handle]; reserved {
				continue
			}
			key := string(pattern.platform) + "|" + handle
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, ExtractedHandle{Platform: pattern.platform, Handle: handle})
		}
	}
	return out
}
