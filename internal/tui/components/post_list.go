package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/hangar/internal/domain"
	"github.com/mmcdole/hangar/internal/timeline"
	"github.com/mmcdole/hangar/internal/tui/styles"
)

// Layout constants for post lists
const (
	// Border adds 1 char on each side (left+right for width, top+bottom for height)
	BorderWidth  = 2
	BorderHeight = 2

	// Scroll indicators ("↑ more" and "↓ more") each take 1 line
	ScrollIndicatorLines = 2

	// header, two lines of text, counts, separator
	PostRowHeight = 5
	postTextLines = 2
)

// PostList is a scrollable, filterable list of posts.
type PostList struct {
	posts   []domain.Post
	visible []domain.Post // posts after the filter

	cursor     int
	offset     int
	maxVisible int

	width   int
	height  int
	focused bool
	title   string
	loading bool
	hasMore bool

	filterActive bool
	filterInput  textinput.Model
	filterQuery  string

	now func() time.Time
}

// NewPostList creates an empty list with the given title
func NewPostList(title string) *PostList {
	ti := textinput.New()
	ti.Placeholder = "type to filter..."
	ti.Prompt = "/ "
	ti.PromptStyle = styles.FilterPrompt
	ti.TextStyle = styles.FilterStyle

	return &PostList{
		title:       title,
		filterInput: ti,
		focused:     true,
		now:         time.Now,
	}
}

// SetTitle changes the header text
func (l *PostList) SetTitle(title string) { l.title = title }

// SetLoading toggles the loading marker in the header
func (l *PostList) SetLoading(loading bool) { l.loading = loading }

// SetHasMore records whether older posts can be loaded
func (l *PostList) SetHasMore(more bool) { l.hasMore = more }

// SetPosts replaces the list contents. The selection follows the selected
// post when it is still present.
func (l *PostList) SetPosts(posts []domain.Post) {
	selected, had := l.Selected()
	l.posts = posts
	l.applyFilter()
	if had {
		for i, p := range l.visible {
			if p.URI == selected.URI {
				l.cursor = i
				l.clampOffset()
				return
			}
		}
	}
	l.clampCursor()
}

// Reset clears posts, selection and filter
func (l *PostList) Reset() {
	l.posts = nil
	l.visible = nil
	l.cursor = 0
	l.offset = 0
	l.clearFilter()
}

func (l *PostList) applyFilter() {
	l.visible = timeline.Filter(l.posts, l.filterQuery)
}

// Top moves the cursor to the newest post
func (l *PostList) Top() {
	l.cursor = 0
	l.offset = 0
}

// Len returns the number of posts shown
func (l *PostList) Len() int { return len(l.visible) }

// Selected returns the post under the cursor
func (l *PostList) Selected() (domain.Post, bool) {
	if l.cursor < 0 || l.cursor >= len(l.visible) {
		return domain.Post{}, false
	}
	return l.visible[l.cursor], true
}

// Window returns the on-screen slice of the unfiltered list. While a
// filter is applied the whole list is reported.
func (l *PostList) Window() (offset, n int) {
	if l.filterQuery != "" {
		return 0, len(l.posts)
	}
	return l.offset, l.maxVisible
}

// NearEnd reports whether the cursor is close to the last loaded post
func (l *PostList) NearEnd() bool {
	return l.filterQuery == "" && len(l.visible) > 0 && l.cursor >= len(l.visible)-2
}

// IsFiltering returns whether the filter input has focus
func (l *PostList) IsFiltering() bool { return l.filterActive }

// FilterQuery returns the applied filter
func (l *PostList) FilterQuery() string { return l.filterQuery }

// SetSize updates the component dimensions
func (l *PostList) SetSize(width, height int) {
	l.width = width
	l.height = height
	// border, title line, scroll indicators, filter line
	rows := (height - BorderHeight - 1 - ScrollIndicatorLines - 1) / PostRowHeight
	if rows < 1 {
		rows = 1
	}
	l.maxVisible = rows
	l.clampOffset()
}

// SetFocused sets the focus state
func (l *PostList) SetFocused(focused bool) { l.focused = focused }

// Update handles navigation and filter keys
func (l *PostList) Update(msg tea.Msg) tea.Cmd {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}

	if l.filterActive {
		switch {
		case key.Matches(keyMsg, PostListKeys.Escape):
			l.clearFilter()
			l.applyFilter()
			l.clampCursor()
			return nil
		case key.Matches(keyMsg, PostListKeys.Enter):
			l.filterActive = false
			l.filterInput.Blur()
			return nil
		}
		var cmd tea.Cmd
		l.filterInput, cmd = l.filterInput.Update(msg)
		if q := l.filterInput.Value(); q != l.filterQuery {
			l.filterQuery = q
			l.applyFilter()
			l.cursor = 0
			l.offset = 0
		}
		return cmd
	}

	switch {
	case key.Matches(keyMsg, PostListKeys.Up):
		l.move(-1)
	case key.Matches(keyMsg, PostListKeys.Down):
		l.move(1)
	case key.Matches(keyMsg, PostListKeys.Home):
		l.cursor = 0
		l.clampOffset()
	case key.Matches(keyMsg, PostListKeys.End):
		l.cursor = len(l.visible) - 1
		l.clampCursor()
	case key.Matches(keyMsg, PostListKeys.HalfUp):
		l.move(-max(1, l.maxVisible/2))
	case key.Matches(keyMsg, PostListKeys.HalfDown):
		l.move(max(1, l.maxVisible/2))
	case key.Matches(keyMsg, PostListKeys.PageUp):
		l.move(-l.maxVisible)
	case key.Matches(keyMsg, PostListKeys.PageDown):
		l.move(l.maxVisible)
	case key.Matches(keyMsg, PostListKeys.Filter):
		l.filterActive = true
		l.filterInput.SetValue(l.filterQuery)
		return l.filterInput.Focus()
	case key.Matches(keyMsg, PostListKeys.Escape):
		if l.filterQuery != "" {
			l.clearFilter()
			l.applyFilter()
			l.clampCursor()
		}
	}
	return nil
}

func (l *PostList) clearFilter() {
	l.filterActive = false
	l.filterQuery = ""
	l.filterInput.SetValue("")
	l.filterInput.Blur()
}

func (l *PostList) move(delta int) {
	l.cursor += delta
	l.clampCursor()
}

func (l *PostList) clampCursor() {
	if l.cursor >= len(l.visible) {
		l.cursor = len(l.visible) - 1
	}
	if l.cursor < 0 {
		l.cursor = 0
	}
	l.clampOffset()
}

// clampOffset keeps the cursor inside the visible window
func (l *PostList) clampOffset() {
	if l.maxVisible < 1 {
		return
	}
	if l.cursor < l.offset {
		l.offset = l.cursor
	}
	if l.cursor >= l.offset+l.maxVisible {
		l.offset = l.cursor - l.maxVisible + 1
	}
	if l.offset < 0 {
		l.offset = 0
	}
}

// View renders the component
func (l *PostList) View() string {
	border := styles.InactiveBorder
	if l.focused {
		border = styles.ActiveBorder
	}
	contentWidth := l.width - BorderWidth - 1
	if contentWidth < 20 {
		contentWidth = 20
	}

	title := l.title
	if l.filterQuery != "" {
		title = fmt.Sprintf("%s (%d/%d)", title, len(l.visible), len(l.posts))
	}
	if l.loading {
		title += " …"
	}
	lines := []string{styles.AccentStyle.Render(styles.Truncate(title, contentWidth))}

	if l.offset > 0 {
		lines = append(lines, styles.DimStyle.Render("↑ more"))
	} else {
		lines = append(lines, "")
	}

	end := min(l.offset+l.maxVisible, len(l.visible))
	for i := l.offset; i < end; i++ {
		lines = append(lines, RenderPost(l.visible[i], i == l.cursor, contentWidth, l.now())...)
	}
	if len(l.visible) == 0 {
		if l.filterQuery != "" {
			lines = append(lines, styles.DimStyle.Render("No matches"))
		} else if !l.loading {
			lines = append(lines, styles.DimStyle.Render("Nothing here yet"))
		}
	}

	switch {
	case end < len(l.visible):
		lines = append(lines, styles.DimStyle.Render("↓ more"))
	case l.hasMore && len(l.visible) > 0:
		lines = append(lines, styles.DimStyle.Render("↓ older posts load as you scroll"))
	}

	if l.filterActive {
		lines = append(lines, l.filterInput.View())
	} else if l.filterQuery != "" {
		lines = append(lines, styles.FilterStyle.Render("/ "+l.filterQuery))
	}

	innerHeight := l.height - BorderHeight
	if innerHeight < 1 {
		innerHeight = 1
	}
	if len(lines) > innerHeight {
		lines = lines[:innerHeight]
	}
	return border.
		Width(l.width - BorderWidth).
		Height(innerHeight).
		Render(strings.Join(lines, "\n"))
}

// RenderPost renders one post as PostRowHeight lines.
func RenderPost(p domain.Post, selected bool, width int, now time.Time) []string {
	gutter := "  "
	if selected {
		gutter = styles.AccentStyle.Render("▌ ")
	}
	inner := width - 2

	lines := []string{gutter + renderHeader(p, inner, now)}

	text := p.Text
	if p.ParentAuthor != nil {
		text = "↩ @" + p.ParentAuthor.Handle + ": " + text
	}
	body := wrap(text, inner, postTextLines)
	if p.Embed != nil && len(body) < postTextLines {
		body = append(body, styles.DimStyle.Render(embedLabel(p.Embed)))
	}
	for len(body) < postTextLines {
		body = append(body, "")
	}

	for _, b := range body {
		lines = append(lines, gutter+styles.BodyStyle.Render(b))
	}
	lines = append(lines, gutter+renderCounts(p), "")
	return lines
}

// renderHeader truncates each part before styling it so escape codes are
// never cut.
func renderHeader(p domain.Post, width int, now time.Time) string {
	var out strings.Builder
	if p.RepostedBy != nil {
		part := styles.Truncate("⟲ "+p.RepostedBy.Name()+" reposted  ", width)
		width -= lipgloss.Width(part)
		out.WriteString(styles.RepostedStyle.Render(part))
	}
	name := styles.Truncate(p.Author.Name(), width)
	width -= lipgloss.Width(name)
	out.WriteString(styles.TitleStyle.Render(name))
	if width > 0 {
		meta := styles.Truncate(" @"+p.Author.Handle+" · "+Ago(p.CreatedAt, now), width)
		out.WriteString(styles.HandleStyle.Render(meta))
	}
	return out.String()
}

func renderCounts(p domain.Post) string {
	like := fmt.Sprintf("♡ %d", p.LikeCount)
	if p.Liked() {
		like = styles.LikedStyle.Render(fmt.Sprintf("♥ %d", p.LikeCount))
	} else {
		like = styles.DimStyle.Render(like)
	}
	repost := styles.DimStyle.Render(fmt.Sprintf("⟲ %d", p.RepostCount))
	if p.Reposted() {
		repost = styles.RepostedStyle.Render(fmt.Sprintf("⟲ %d", p.RepostCount))
	}
	replies := styles.DimStyle.Render(fmt.Sprintf("↩ %d", p.ReplyCount))
	return replies + "   " + repost + "   " + like
}

func embedLabel(e *domain.Embed) string {
	switch e.Kind {
	case domain.EmbedImages:
		return fmt.Sprintf("[%d image(s)]", len(e.Images))
	case domain.EmbedExternal:
		if e.External != nil {
			return "[link] " + e.External.Title
		}
	case domain.EmbedRecord, domain.EmbedRecordWithMedia:
		if e.Record != nil {
			return "[quote] @" + e.Record.Author.Handle
		}
	case domain.EmbedVideo:
		return "[video]"
	}
	return "[embed]"
}

// wrap breaks text into at most n lines of width cells, marking cut text.
func wrap(text string, width, n int) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" || width <= 0 {
		return nil
	}
	wrapped := lipgloss.NewStyle().Width(width).Render(text)
	lines := strings.Split(wrapped, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	if len(lines) > n {
		lines = lines[:n]
		lines[n-1] = styles.Truncate(lines[n-1]+" …", width)
	}
	return lines
}

// Ago formats t relative to now the way timelines usually do.
func Ago(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case t.IsZero():
		return ""
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	case t.Year() == now.Year():
		return t.Format("Jan 2")
	default:
		return t.Format("Jan 2, 2006")
	}
}
