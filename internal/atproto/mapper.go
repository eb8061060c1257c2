package atproto

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmcdole/hangar/internal/domain"
)

var errMissingIdentity = errors.New("missing uri or cid")

// parseTime accepts the RFC 3339 variants the service emits.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func mapActor(dto profileBasicDTO) domain.Actor {
	return domain.Actor{
		DID:         dto.DID,
		Handle:      dto.Handle,
		DisplayName: dto.DisplayName,
		Avatar:      dto.Avatar,
	}
}

func mapProfile(dto profileDetailedDTO) (domain.Profile, error) {
	if dto.DID == "" {
		return domain.Profile{}, fmt.Errorf("%w: profile without did", domain.ErrDecode)
	}
	indexed, _ := parseTime(dto.IndexedAt)
	p := domain.Profile{
		DID:            dto.DID,
		Handle:         dto.Handle,
		DisplayName:    dto.DisplayName,
		Description:    dto.Description,
		Avatar:         dto.Avatar,
		Banner:         dto.Banner,
		FollowersCount: dto.FollowersCount,
		FollowsCount:   dto.FollowsCount,
		PostsCount:     dto.PostsCount,
		IndexedAt:      indexed,
	}
	if dto.Viewer != nil {
		p.Viewer = domain.ProfileViewer{
			Following:  dto.Viewer.Following,
			FollowedBy: dto.Viewer.FollowedBy,
			Muted:      dto.Viewer.Muted,
			BlockedBy:  dto.Viewer.BlockedBy,
		}
	}
	return p, nil
}

// mapPostView converts a hydrated post view. It fails only when the item
// cannot be identified or ordered; optional parts degrade to zero values.
func mapPostView(dto postViewDTO) (domain.Post, error) {
	if dto.URI == "" || dto.CID == "" {
		return domain.Post{}, errMissingIdentity
	}
	if dto.Author.DID == "" {
		return domain.Post{}, errors.New("missing author")
	}
	indexed, err := parseTime(dto.IndexedAt)
	if err != nil {
		return domain.Post{}, err
	}

	var rec postRecordReadDTO
	if len(dto.Record) > 0 {
		if err := json.Unmarshal(dto.Record, &rec); err != nil {
			return domain.Post{}, fmt.Errorf("post record: %w", err)
		}
	}
	created, _ := parseTime(rec.CreatedAt)

	p := domain.Post{
		URI:         dto.URI,
		CID:         dto.CID,
		Author:      mapActor(dto.Author),
		Text:        rec.Text,
		Facets:      mapFacets(rec.Facets),
		Embed:       mapEmbed(dto.Embed),
		ReplyCount:  dto.ReplyCount,
		RepostCount: dto.RepostCount,
		LikeCount:   dto.LikeCount,
		QuoteCount:  dto.QuoteCount,
		CreatedAt:   created,
		IndexedAt:   indexed,
	}
	if rec.Reply != nil {
		p.Reply = &domain.ReplyRef{
			Root:   domain.PostRef{URI: rec.Reply.Root.URI, CID: rec.Reply.Root.CID},
			Parent: domain.PostRef{URI: rec.Reply.Parent.URI, CID: rec.Reply.Parent.CID},
		}
	}
	if dto.Viewer != nil {
		p.Viewer = domain.ViewerState{Like: dto.Viewer.Like, Repost: dto.Viewer.Repost}
	}
	return p, nil
}

func mapFeedItem(raw json.RawMessage) (domain.Post, error) {
	var dto feedViewPostDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return domain.Post{}, err
	}
	p, err := mapPostView(dto.Post)
	if err != nil {
		return domain.Post{}, err
	}
	if dto.Reason != nil && dto.Reason.Type == typeReasonRepost {
		by := mapActor(dto.Reason.By)
		p.RepostedBy = &by
		p.RepostedAt, err = parseTime(dto.Reason.IndexedAt)
		if err != nil {
			return domain.Post{}, err
		}
	}
	if dto.Reply != nil && dto.Reply.Parent.Author != nil {
		parent := mapActor(*dto.Reply.Parent.Author)
		p.ParentAuthor = &parent
	}
	return p, nil
}

// decodeItems maps every raw item independently. A failing item is dropped
// and recorded; the rest of the page survives.
func decodeItems[T any](raws []json.RawMessage, decode func(json.RawMessage) (T, error), logger *slog.Logger, nsid string) ([]T, []error) {
	items := make([]T, 0, len(raws))
	var failures []error
	for i, raw := range raws {
		item, err := decode(raw)
		if err != nil {
			derr := &domain.DecodeError{Index: i, Err: err}
			failures = append(failures, derr)
			logger.Warn("dropping undecodable item", "nsid", nsid, "index", i, "error", err)
			continue
		}
		items = append(items, item)
	}
	return items, failures
}

func mapFacets(dtos []facetDTO) []domain.Facet {
	var out []domain.Facet
	for _, f := range dtos {
		if f.Index.ByteEnd <= f.Index.ByteStart || len(f.Features) == 0 {
			continue
		}
		feat := f.Features[0]
		facet := domain.Facet{ByteStart: f.Index.ByteStart, ByteEnd: f.Index.ByteEnd}
		switch feat.Type {
		case typeFacetLink:
			facet.Kind, facet.Value = domain.FacetLink, feat.URI
		case typeFacetMention:
			facet.Kind, facet.Value = domain.FacetMention, feat.DID
		case typeFacetTag:
			facet.Kind, facet.Value = domain.FacetTag, feat.Tag
		default:
			continue
		}
		out = append(out, facet)
	}
	return out
}

// mapEmbed converts an embed view. Unknown or malformed embeds are dropped
// rather than failing the post.
func mapEmbed(raw json.RawMessage) *domain.Embed {
	if len(raw) == 0 {
		return nil
	}
	var dto embedViewDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return nil
	}

	switch dto.Type {
	case typeEmbedImages:
		e := &domain.Embed{Kind: domain.EmbedImages}
		for _, img := range dto.Images {
			im := domain.Image{Thumb: img.Thumb, Fullsize: img.Fullsize, Alt: img.Alt}
			if img.AspectRatio != nil {
				im.Width, im.Height = img.AspectRatio.Width, img.AspectRatio.Height
			}
			e.Images = append(e.Images, im)
		}
		return e
	case typeEmbedExternal:
		if dto.External == nil {
			return nil
		}
		return &domain.Embed{Kind: domain.EmbedExternal, External: &domain.External{
			URI:         dto.External.URI,
			Title:       dto.External.Title,
			Description: dto.External.Description,
			Thumb:       dto.External.Thumb,
		}}
	case typeEmbedRecord:
		rec := mapViewRecord(dto.Record)
		if rec == nil {
			return nil
		}
		return &domain.Embed{Kind: domain.EmbedRecord, Record: rec}
	case typeEmbedRecordWithMedia:
		// record is {record: viewRecord}
		var wrapper viewRecordDTO
		if err := json.Unmarshal(dto.Record, &wrapper); err != nil {
			return nil
		}
		return &domain.Embed{
			Kind:   domain.EmbedRecordWithMedia,
			Record: mapViewRecord(wrapper.Record),
			Media:  mapEmbed(dto.Media),
		}
	case typeEmbedVideo:
		return &domain.Embed{Kind: domain.EmbedVideo, Video: &domain.Video{
			Playlist:  dto.Playlist,
			Thumbnail: dto.Thumbnail,
			Alt:       dto.Alt,
		}}
	}
	return nil
}

func mapViewRecord(raw json.RawMessage) *domain.EmbeddedRecord {
	if len(raw) == 0 {
		return nil
	}
	var v viewRecordDTO
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	if v.Type != typeViewRecord {
		// viewNotFound, viewBlocked, viewDetached
		return &domain.EmbeddedRecord{URI: v.URI, Missing: true}
	}
	rec := &domain.EmbeddedRecord{URI: v.URI, CID: v.CID, Author: mapActor(v.Author)}
	var body postRecordReadDTO
	if json.Unmarshal(v.Value, &body) == nil {
		rec.Text = body.Text
	}
	rec.IndexedAt, _ = parseTime(v.IndexedAt)
	return rec
}

func mapNotification(raw json.RawMessage) (domain.Notification, error) {
	var dto notificationDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return domain.Notification{}, err
	}
	if dto.URI == "" {
		return domain.Notification{}, errMissingIdentity
	}
	indexed, err := parseTime(dto.IndexedAt)
	if err != nil {
		return domain.Notification{}, err
	}
	n := domain.Notification{
		URI:           dto.URI,
		CID:           dto.CID,
		Author:        mapActor(dto.Author),
		Reason:        domain.NotificationReason(dto.Reason),
		ReasonSubject: dto.ReasonSubject,
		IsRead:        dto.IsRead,
		IndexedAt:     indexed,
	}
	var rec postRecordReadDTO
	if len(dto.Record) > 0 && json.Unmarshal(dto.Record, &rec) == nil {
		n.Text = rec.Text
	}
	return n, nil
}

func mapSession(dto sessionDTO, fallbackService string) (*domain.Session, error) {
	if dto.DID == "" || dto.AccessJwt == "" {
		return nil, fmt.Errorf("%w: session response without did or token", domain.ErrDecode)
	}
	s := &domain.Session{
		DID:        dto.DID,
		Handle:     dto.Handle,
		AccessJWT:  dto.AccessJwt,
		RefreshJWT: dto.RefreshJwt,
		Service:    pdsEndpoint(dto.DidDoc, fallbackService),
	}
	s.AccessExpiresAt = tokenExpiry(dto.AccessJwt)
	s.RefreshExpiresAt = tokenExpiry(dto.RefreshJwt)
	return s, nil
}

// pdsEndpoint extracts the #atproto_pds service endpoint from a DID document.
func pdsEndpoint(raw json.RawMessage, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}
	var doc didDocDTO
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fallback
	}
	for _, svc := range doc.Service {
		if svc.ID == "#atproto_pds" && svc.ServiceEndpoint != "" {
			return svc.ServiceEndpoint
		}
	}
	return fallback
}
