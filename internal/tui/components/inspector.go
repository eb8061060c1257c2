package components

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/mmcdole/hangar/internal/domain"
	"github.com/mmcdole/hangar/internal/tui/styles"
)

// Inspector shows the selected post in full: text, links, embeds and counts.
type Inspector struct {
	post   *domain.Post
	width  int
	height int
	offset int

	// author avatar, once loaded
	avatarURL  string
	avatarInfo string
}

// NewInspector creates an empty inspector
func NewInspector() Inspector { return Inspector{} }

// SetPost sets the post to display
func (i *Inspector) SetPost(p domain.Post, ok bool) {
	if !ok {
		i.post = nil
		return
	}
	if i.post == nil || i.post.URI != p.URI {
		i.offset = 0
	}
	i.post = &p
}

// SetAvatar records a downloaded avatar for display
func (i *Inspector) SetAvatar(url string, data []byte) {
	i.avatarURL = url
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		i.avatarInfo = fmt.Sprintf("%d KiB", (len(data)+1023)/1024)
		return
	}
	i.avatarInfo = fmt.Sprintf("%s %d×%d, %d KiB", format, cfg.Width, cfg.Height, (len(data)+1023)/1024)
}

// AvatarURL returns the URL of the last loaded avatar
func (i Inspector) AvatarURL() string { return i.avatarURL }

// SetSize updates the component dimensions
func (i *Inspector) SetSize(width, height int) {
	i.width = width
	i.height = height
}

// Scroll moves the body by delta lines
func (i *Inspector) Scroll(delta int) {
	i.offset = max(0, i.offset+delta)
}

// Links returns the web links a post carries, external embed first.
func Links(p domain.Post) []string {
	var links []string
	seen := make(map[string]bool)
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			links = append(links, u)
		}
	}
	if p.Embed != nil && p.Embed.External != nil {
		add(p.Embed.External.URI)
	}
	if p.Embed != nil && p.Embed.Media != nil && p.Embed.Media.External != nil {
		add(p.Embed.Media.External.URI)
	}
	for _, f := range p.Facets {
		if f.Kind == domain.FacetLink {
			add(f.Value)
		}
	}
	return links
}

func (i Inspector) lines(width int) []string {
	p := i.post
	var out []string
	out = append(out, styles.TitleStyle.Render(styles.Truncate(p.Author.Name(), width)))
	out = append(out, styles.HandleStyle.Render(styles.Truncate("@"+p.Author.Handle, width)))
	if i.avatarURL == p.Author.Avatar && i.avatarInfo != "" {
		out = append(out, styles.DimStyle.Render("avatar: "+i.avatarInfo))
	}
	out = append(out, "")
	if p.Reply != nil && p.ParentAuthor != nil {
		out = append(out, styles.DimStyle.Render("replying to @"+p.ParentAuthor.Handle))
	}
	out = append(out, strings.Split(styles.BodyStyle.Width(width).Render(p.Text), "\n")...)

	if e := p.Embed; e != nil {
		out = append(out, "")
		out = append(out, embedLines(e, width)...)
		if e.Media != nil {
			out = append(out, embedLines(e.Media, width)...)
		}
	}

	if links := Links(*p); len(links) > 0 {
		out = append(out, "", styles.AccentStyle.Render("Links"))
		for _, l := range links {
			out = append(out, styles.DimStyle.Render(styles.Truncate(l, width)))
		}
	}

	out = append(out, "",
		renderCounts(*p)+styles.DimStyle.Render(fmt.Sprintf("   ❝ %d", p.QuoteCount)),
		styles.DimStyle.Render(p.CreatedAt.Local().Format(time.DateTime)),
	)
	return out
}

func embedLines(e *domain.Embed, width int) []string {
	switch e.Kind {
	case domain.EmbedImages:
		out := []string{styles.AccentStyle.Render(fmt.Sprintf("%d image(s)", len(e.Images)))}
		for _, img := range e.Images {
			alt := img.Alt
			if alt == "" {
				alt = "(no description)"
			}
			out = append(out, styles.DimStyle.Render(styles.Truncate("• "+alt, width)))
		}
		return out
	case domain.EmbedExternal:
		if x := e.External; x != nil {
			return []string{
				styles.AccentStyle.Render(styles.Truncate(x.Title, width)),
				styles.DimStyle.Render(styles.Truncate(x.Description, width)),
			}
		}
	case domain.EmbedRecord, domain.EmbedRecordWithMedia:
		if r := e.Record; r != nil {
			if r.Missing {
				return []string{styles.DimStyle.Render("quoted post unavailable")}
			}
			return append(
				[]string{styles.AccentStyle.Render(styles.Truncate("❝ @"+r.Author.Handle, width))},
				strings.Split(styles.BodyStyle.Width(width).Render(r.Text), "\n")...,
			)
		}
	case domain.EmbedVideo:
		if v := e.Video; v != nil && v.Alt != "" {
			return []string{styles.AccentStyle.Render("video"), styles.DimStyle.Render(styles.Truncate(v.Alt, width))}
		}
		return []string{styles.AccentStyle.Render("video")}
	}
	return nil
}

// View renders the component
func (i Inspector) View() string {
	contentWidth := i.width - BorderWidth - 2
	if contentWidth < 10 {
		contentWidth = 10
	}
	innerHeight := max(1, i.height-BorderHeight)

	var body []string
	if i.post == nil {
		body = []string{styles.DimStyle.Render("No post selected")}
	} else {
		body = i.lines(contentWidth)
	}
	offset := min(i.offset, max(0, len(body)-innerHeight+1))
	body = body[offset:]
	if len(body) > innerHeight {
		body = append(body[:innerHeight-1], styles.DimStyle.Render("↓ more"))
	}
	return styles.InactiveBorder.
		Width(i.width - BorderWidth).
		Height(innerHeight).
		Padding(0, 1).
		Render(strings.Join(body, "\n"))
}
