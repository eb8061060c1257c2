package atproto

import (
	"context"
	"regexp"
	"strings"

	"github.com/mmcdole/hangar/internal/domain"
)

var (
	urlPattern     = regexp.MustCompile(`https?://[^\s<>\[\]{}|\\^` + "`" + `\x00-\x1f\x7f]+`)
	mentionPattern = regexp.MustCompile(`(?:^|[\s(\[])(@(([a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?\.)+[a-zA-Z]([a-zA-Z0-9-]*[a-zA-Z0-9])?))`)
	tagPattern     = regexp.MustCompile(`(?:^|[\s(\[])#([a-zA-Z][a-zA-Z0-9_]*)`)
)

// DetectFacets finds links, mentions and hashtags in text and returns them
// with UTF-8 byte ranges. Links win over mentions, mentions over tags;
// an overlapping lower-priority match is skipped. Mention values hold the
// bare handle until resolved to a DID.
func DetectFacets(text string) []domain.Facet {
	var facets []domain.Facet

	for _, m := range urlPattern.FindAllStringIndex(text, -1) {
		uri := strings.TrimRight(text[m[0]:m[1]], ".,;!?")
		facets = append(facets, domain.Facet{
			ByteStart: m[0],
			ByteEnd:   m[0] + len(uri),
			Kind:      domain.FacetLink,
			Value:     uri,
		})
	}

	for _, m := range mentionPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		if overlaps(start, end, facets) {
			continue
		}
		facets = append(facets, domain.Facet{
			ByteStart: start,
			ByteEnd:   end,
			Kind:      domain.FacetMention,
			Value:     text[m[4]:m[5]],
		})
	}

	for _, m := range tagPattern.FindAllStringSubmatchIndex(text, -1) {
		// group 1 is the tag name; the '#' sits right before it
		start, end := m[2]-1, m[3]
		if overlaps(start, end, facets) {
			continue
		}
		facets = append(facets, domain.Facet{
			ByteStart: start,
			ByteEnd:   end,
			Kind:      domain.FacetTag,
			Value:     text[m[2]:m[3]],
		})
	}

	return facets
}

func overlaps(start, end int, existing []domain.Facet) bool {
	for _, f := range existing {
		if start < f.ByteEnd && end > f.ByteStart {
			return true
		}
	}
	return false
}

// resolveMentions swaps mention handles for DIDs. Mentions that do not
// resolve are dropped so the post never links to the wrong account.
func (c *Client) resolveMentions(ctx context.Context, s *domain.Session, facets []domain.Facet) []domain.Facet {
	out := facets[:0:0]
	cache := make(map[string]string)
	for _, f := range facets {
		if f.Kind != domain.FacetMention {
			out = append(out, f)
			continue
		}
		did, seen := cache[f.Value]
		if !seen {
			resolved, err := c.ResolveHandle(ctx, s, f.Value)
			if err != nil {
				c.logger.Debug("dropping unresolved mention", "handle", f.Value, "error", err)
			}
			did = resolved
			cache[f.Value] = did
		}
		if did == "" {
			continue
		}
		f.Value = did
		out = append(out, f)
	}
	return out
}

// facetsToWire converts resolved facets into the record representation.
func facetsToWire(facets []domain.Facet) []facetDTO {
	if len(facets) == 0 {
		return nil
	}
	out := make([]facetDTO, 0, len(facets))
	for _, f := range facets {
		var d facetDTO
		d.Index.ByteStart = f.ByteStart
		d.Index.ByteEnd = f.ByteEnd
		switch f.Kind {
		case domain.FacetLink:
			d.Features = []facetFeatureDTO{{Type: typeFacetLink, URI: f.Value}}
		case domain.FacetMention:
			d.Features = []facetFeatureDTO{{Type: typeFacetMention, DID: f.Value}}
		case domain.FacetTag:
			d.Features = []facetFeatureDTO{{Type: typeFacetTag, Tag: f.Value}}
		default:
			continue
		}
		out = append(out, d)
	}
	return out
}
