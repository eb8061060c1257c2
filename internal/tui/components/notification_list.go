package components

import (
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/hangar/internal/domain"
	"github.com/mmcdole/hangar/internal/tui/styles"
)

// NotificationList is a scrollable list of notifications, one per line pair.
type NotificationList struct {
	items  []domain.Notification
	cursor int
	offset int
	width  int
	height int
	title  string
	now    func() time.Time
}

const notificationRowHeight = 2

// NewNotificationList creates an empty list
func NewNotificationList() *NotificationList {
	return &NotificationList{title: "Notifications", now: time.Now}
}

// SetItems replaces the list contents
func (l *NotificationList) SetItems(items []domain.Notification, unread int, mentionsOnly bool) {
	l.items = items
	l.title = "Notifications"
	if mentionsOnly {
		l.title = "Mentions"
	}
	if unread > 0 {
		l.title += " " + styles.BadgeStyle.Render(itoa(unread))
	}
	l.cursor = min(l.cursor, max(0, len(items)-1))
}

// Selected returns the notification under the cursor
func (l *NotificationList) Selected() (domain.Notification, bool) {
	if l.cursor < 0 || l.cursor >= len(l.items) {
		return domain.Notification{}, false
	}
	return l.items[l.cursor], true
}

// NearEnd reports whether the cursor is on one of the last loaded items
func (l *NotificationList) NearEnd() bool {
	return len(l.items) > 0 && l.cursor >= len(l.items)-2
}

// SetSize updates the component dimensions
func (l *NotificationList) SetSize(width, height int) {
	l.width = width
	l.height = height
}

func (l *NotificationList) rows() int {
	return max(1, (l.height-BorderHeight-1)/notificationRowHeight)
}

// Update handles navigation keys
func (l *NotificationList) Update(msg tea.Msg) tea.Cmd {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}
	switch {
	case key.Matches(keyMsg, PostListKeys.Up):
		l.cursor--
	case key.Matches(keyMsg, PostListKeys.Down):
		l.cursor++
	case key.Matches(keyMsg, PostListKeys.Home):
		l.cursor = 0
	case key.Matches(keyMsg, PostListKeys.End):
		l.cursor = len(l.items) - 1
	case key.Matches(keyMsg, PostListKeys.PageDown):
		l.cursor += l.rows()
	case key.Matches(keyMsg, PostListKeys.PageUp):
		l.cursor -= l.rows()
	}
	l.cursor = max(0, min(l.cursor, len(l.items)-1))
	if l.cursor < l.offset {
		l.offset = l.cursor
	}
	if l.cursor >= l.offset+l.rows() {
		l.offset = l.cursor - l.rows() + 1
	}
	return nil
}

// View renders the component
func (l *NotificationList) View() string {
	contentWidth := max(20, l.width-BorderWidth-1)
	lines := []string{styles.AccentStyle.Render(l.title)}
	end := min(l.offset+l.rows(), len(l.items))
	for i := l.offset; i < end; i++ {
		n := l.items[i]
		gutter := "  "
		if i == l.cursor {
			gutter = styles.AccentStyle.Render("▌ ")
		}
		marker := " "
		if !n.IsRead {
			marker = styles.AccentStyle.Render("•")
		}
		head := styles.Truncate(n.Author.Name()+" "+reasonText(n.Reason), contentWidth-12)
		lines = append(lines,
			gutter+marker+" "+styles.TitleStyle.Render(head)+styles.HandleStyle.Render(" · "+Ago(n.IndexedAt, l.now())),
			gutter+"  "+styles.BodyStyle.Render(styles.Truncate(strings.Join(strings.Fields(n.Text), " "), contentWidth-4)),
		)
	}
	if len(l.items) == 0 {
		lines = append(lines, styles.DimStyle.Render("No notifications"))
	}
	return styles.ActiveBorder.
		Width(l.width - BorderWidth).
		Height(max(1, l.height-BorderHeight)).
		Render(strings.Join(lines, "\n"))
}

func reasonText(r domain.NotificationReason) string {
	switch r {
	case domain.ReasonLike:
		return "liked your post"
	case domain.ReasonRepost:
		return "reposted your post"
	case domain.ReasonFollow:
		return "followed you"
	case domain.ReasonMention:
		return "mentioned you"
	case domain.ReasonReply:
		return "replied"
	case domain.ReasonQuote:
		return "quoted your post"
	}
	return string(r)
}

func itoa(n int) string {
	if n > 99 {
		return "99+"
	}
	return strconv.Itoa(n)
}
