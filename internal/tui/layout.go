package tui

// Layout proportions
const (
	ListColumnPercent = 60 // post list when the inspector is shown
	MinColumnWidth    = 30
	MinInspectorWidth = 28
)

// contentSize is the area between the tab bar and the footer
func (m Model) contentSize() (int, int) {
	h := m.Height - ChromeHeight
	if m.unseen > 0 && m.Tab != TabNotifications {
		h-- // new posts banner
	}
	return m.Width, max(h, 3)
}

// columnWidths splits the content width between list and inspector.
// The inspector is dropped on narrow terminals.
func (m Model) columnWidths() (list, inspector int) {
	width, _ := m.contentSize()
	if !m.ShowInspector || m.Tab == TabNotifications {
		return width, 0
	}
	list = width * ListColumnPercent / 100
	if list < MinColumnWidth {
		list = MinColumnWidth
	}
	inspector = width - list
	if inspector < MinInspectorWidth {
		return width, 0
	}
	return list, inspector
}

// updateLayout recalculates component sizes
func (m *Model) updateLayout() {
	if !m.Ready {
		return
	}
	_, height := m.contentSize()
	list, inspector := m.columnWidths()
	m.Posts.SetSize(list, height)
	m.Notifications.SetSize(list, height)
	m.Inspector.SetSize(inspector, height)
}
