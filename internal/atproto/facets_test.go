package atproto

import (
	"testing"

	"github.com/mmcdole/hangar/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFacetsPlainText(t *testing.T) {
	assert.Empty(t, DetectFacets("just some words"))
}

func TestDetectFacetsLinkTrimsTrailingPunctuation(t *testing.T) {
	facets := DetectFacets("see https://example.com/path.")
	require.Len(t, facets, 1)
	assert.Equal(t, domain.Facet{ByteStart: 4, ByteEnd: 28, Kind: domain.FacetLink, Value: "https://example.com/path"}, facets[0])
}

func TestDetectFacetsMention(t *testing.T) {
	facets := DetectFacets("hi @alice.bsky.social!")
	require.Len(t, facets, 1)
	assert.Equal(t, domain.FacetMention, facets[0].Kind)
	assert.Equal(t, "alice.bsky.social", facets[0].Value)
	assert.Equal(t, 3, facets[0].ByteStart)
	assert.Equal(t, 21, facets[0].ByteEnd)
}

func TestDetectFacetsHashtags(t *testing.T) {
	facets := DetectFacets("hello #golang and (#rust)")
	require.Len(t, facets, 2)
	assert.Equal(t, domain.Facet{ByteStart: 6, ByteEnd: 13, Kind: domain.FacetTag, Value: "golang"}, facets[0])
	assert.Equal(t, domain.Facet{ByteStart: 19, ByteEnd: 24, Kind: domain.FacetTag, Value: "rust"}, facets[1])
}

func TestDetectFacetsLinkWinsOverlap(t *testing.T) {
	facets := DetectFacets("https://x.com/(@bob.test)")
	require.Len(t, facets, 1)
	assert.Equal(t, domain.FacetLink, facets[0].Kind)
}

func TestDetectFacetsUsesByteOffsets(t *testing.T) {
	text := "héllo @alice.example.com"
	facets := DetectFacets(text)
	require.Len(t, facets, 1)
	assert.Equal(t, 7, facets[0].ByteStart)
	assert.Equal(t, 25, facets[0].ByteEnd)
	assert.Equal(t, "@alice.example.com", text[facets[0].ByteStart:facets[0].ByteEnd])
}
