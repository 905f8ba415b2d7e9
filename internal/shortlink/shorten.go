package shortlink

import (
	"context"
	"regexp"
	"strings"

	"github.com/brinecast/brinecast/internal/model"
)

// urlPattern matches http(s) URLs embedded in message text. Trailing
// punctuation is handled separately so "see https://x.com." shortens
// the URL without swallowing the period.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// trailingPunctuation are characters stripped from the end of a
// matched URL before shortening.
const trailingPunctuation = ".,;:!?)'\""

// ShortenURLsInText replaces every URL in text with a tracked short
// link tied to the given campaign and message. Each distinct URL gets
// one short link; repeats of the same URL reuse it. A URL that fails
// to shorten is left as-is; one bad URL must not block the send.
func (s *Service) ShortenURLsInText(ctx context.Context, text, campaignID, messageID string) string {
	links := make(map[string]string)

	return urlPattern.ReplaceAllStringFunc(text, func(match string) string {
		cleaned := strings.TrimRight(match, trailingPunctuation)
		trailer := match[len(cleaned):]
		if cleaned == "" {
			return match
		}

		if link, ok := links[cleaned]; ok {
			return link + trailer
		}

		short, err := s.Create(ctx, CreateInput{
			OriginalURL: cleaned,
			Source:      model.ShortURLSourceCampaign,
			CampaignID:  campaignID,
			MessageID:   messageID,
		})
		if err != nil {
			s.logger.Warn("failed to shorten url in message body",
				"error", err, "campaign_id", campaignID, "message_id", messageID)
			return match
		}

		link := s.ShortLink(short.Code)
		links[cleaned] = link
		return link + trailer
	})
}
