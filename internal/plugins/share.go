package plugins

import (
	"net/url"
	"strings"
)

// Networks supported by ShareLinks, in display order
var Networks = []string{"whatsapp", "facebook", "x", "telegram", "email"}

// ShareLink is a prebuilt link for one network
type ShareLink struct {
	Network string `json:"network"`
	URL     string `json:"url"`
}

// InvitationURL returns the public page of a published invitation
func InvitationURL(publicURL, shareCode string) string {
	return strings.TrimRight(publicURL, "/") + "/invitation/" + url.PathEscape(shareCode)
}

// ShareLinks builds one link per network for the invitation page
func ShareLinks(pageURL, message string) []ShareLink {
	text := pageURL
	if message != "" {
		text = message + " " + pageURL
	}

	links := make([]ShareLink, 0, len(Networks))
	for _, network := range Networks {
		var link string
		switch network {
		case "whatsapp":
			link = "https://wa.me/?text=" + url.QueryEscape(text)
		case "facebook":
			link = "https://www.facebook.com/sharer/sharer.php?u=" + url.QueryEscape(pageURL)
		case "x":
			link = "https://twitter.com/intent/tweet?url=" + url.QueryEscape(pageURL) + "&text=" + url.QueryEscape(message)
		case "telegram":
			link = "https://t.me/share/url?url=" + url.QueryEscape(pageURL) + "&text=" + url.QueryEscape(message)
		case "email":
			link = "mailto:?subject=" + url.PathEscape(message) + "&body=" + url.PathEscape(text)
		}
		links = append(links, ShareLink{Network: network, URL: link})
	}
	return links
}
