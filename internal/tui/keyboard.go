package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/hangar/internal/atproto"
	"github.com/mmcdole/hangar/internal/domain"
	"github.com/mmcdole/hangar/internal/service"
	"github.com/mmcdole/hangar/internal/tui/components"
)

// handleKeyMsg routes key presses by state: modals first, then the
// focused list, then global bindings.
func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.State {
	case StateStarting:
		if key.Matches(msg, Keys.Quit) {
			return m, tea.Quit
		}
		return m, nil

	case StateLogin:
		var cmd tea.Cmd
		var submitted bool
		m.Login, cmd, submitted = m.Login.Update(msg)
		if submitted {
			handle, password := m.Login.Credentials()
			m.Login.SetBusy(true)
			cmd = m.track(reqLogin)(m.core.SubmitLogin(handle, password))
		}
		return m, cmd

	case StateHelp:
		m.State = StateBrowsing
		return m, nil

	case StateConfirmLogout:
		var cmd tea.Cmd
		switch {
		case key.Matches(msg, Keys.Confirm):
			m.State = StateBrowsing
			cmd = m.track(reqOther)(m.core.SubmitLogout())
		case key.Matches(msg, Keys.Deny):
			m.State = StateBrowsing
		}
		return m, cmd

	case StateConfirmDelete:
		var cmd tea.Cmd
		switch {
		case key.Matches(msg, Keys.Confirm):
			m.State = StateBrowsing
			cmd = m.track(reqOther)(m.core.Delete(m.deleting))
		case key.Matches(msg, Keys.Deny):
			m.State = StateBrowsing
		}
		return m, cmd
	}

	if m.Compose.IsVisible() {
		cmd := m.handleComposeKey(msg)
		return m, cmd
	}

	if m.Tab != TabNotifications && (m.Posts.IsFiltering() ||
		(m.Posts.FilterQuery() != "" && key.Matches(msg, components.PostListKeys.Escape))) {
		cmd := m.Posts.Update(msg)
		m.afterMove()
		return m, cmd
	}

	cmd := m.handleBrowseKey(msg)
	return m, cmd
}

func (m *Model) handleBrowseKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, Keys.Quit):
		return tea.Quit
	case key.Matches(msg, Keys.Help):
		m.State = StateHelp
		return nil
	case key.Matches(msg, Keys.Logout):
		m.State = StateConfirmLogout
		return nil
	case key.Matches(msg, Keys.Home):
		return m.switchTab(TabHome, "")
	case key.Matches(msg, Keys.Notifications):
		return m.switchTab(TabNotifications, "")
	case key.Matches(msg, Keys.OwnProfile):
		if s := m.core.Session(); s != nil {
			return m.switchTab(TabProfile, s.DID)
		}
		return nil
	case key.Matches(msg, Keys.Refresh):
		return m.refresh()
	case key.Matches(msg, Keys.ToggleInspector):
		m.ShowInspector = !m.ShowInspector
		m.updateLayout()
		return nil
	}

	if m.Tab == TabNotifications {
		return m.handleNotificationKey(msg)
	}
	return m.handlePostKey(msg)
}

func (m *Model) handleNotificationKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, Keys.MentionsOnly):
		m.mentionsOnly = !m.mentionsOnly
		m.syncViews()
		return nil
	case key.Matches(msg, Keys.Back):
		return m.switchTab(TabHome, "")
	case key.Matches(msg, Keys.Profile):
		if n, ok := m.Notifications.Selected(); ok {
			return m.switchTab(TabProfile, n.Author.DID)
		}
		return nil
	}
	cmd := m.Notifications.Update(msg)
	if m.Notifications.NearEnd() && m.core.Notifications(m.mentionsOnly).HasMore && !m.loadingKind(reqMore) {
		return tea.Batch(cmd, m.track(reqMore)(m.core.LoadMore(domain.StreamNotifications, "")))
	}
	return cmd
}

func (m *Model) handlePostKey(msg tea.KeyMsg) tea.Cmd {
	post, selected := m.Posts.Selected()

	switch {
	case key.Matches(msg, Keys.ShowNew):
		if m.unseen > 0 {
			m.core.Acknowledge(m.stream)
			m.syncViews()
			m.Posts.Top()
			return m.afterMove()
		}
		return nil
	case key.Matches(msg, Keys.Back):
		if m.Tab == TabProfile {
			return m.switchTab(TabHome, "")
		}
		return nil
	case key.Matches(msg, Keys.Compose):
		return m.openCompose(domain.Draft{}, "New post", "")
	case key.Matches(msg, Keys.ScrollInspector):
		if msg.String() == "J" {
			m.Inspector.Scroll(1)
		} else {
			m.Inspector.Scroll(-1)
		}
		return nil
	}

	if !selected {
		return m.Posts.Update(msg)
	}

	switch {
	case key.Matches(msg, Keys.Like):
		if post.Liked() {
			return m.track(reqOther)(m.core.Unlike(post.Ref()))
		}
		return m.track(reqOther)(m.core.Like(post.Ref()))
	case key.Matches(msg, Keys.Repost):
		if post.Reposted() {
			return m.track(reqOther)(m.core.Unrepost(post.Ref()))
		}
		return m.track(reqOther)(m.core.Repost(post.Ref()))
	case key.Matches(msg, Keys.Reply):
		return m.openCompose(domain.Draft{ReplyTo: service.ReplyTo(post)}, "Reply to @"+post.Author.Handle, post.Text)
	case key.Matches(msg, Keys.Quote):
		ref := post.Ref()
		return m.openCompose(domain.Draft{Quote: &ref}, "Quote @"+post.Author.Handle, post.Text)
	case key.Matches(msg, Keys.Delete):
		if s := m.core.Session(); s != nil && post.Author.DID == s.DID && post.RepostedBy == nil {
			m.deleting = post.Ref()
			m.State = StateConfirmDelete
			return nil
		}
		return m.setError("Only your own posts can be deleted.")
	case key.Matches(msg, Keys.Open):
		return m.openLink(post)
	case key.Matches(msg, Keys.Profile):
		return m.switchTab(TabProfile, post.Author.DID)
	}

	cmd := m.Posts.Update(msg)
	return tea.Batch(cmd, m.afterMove())
}

// afterMove reports the new window to the core, loads the author avatar
// for the inspector and fetches older posts near the end of the list.
func (m *Model) afterMove() tea.Cmd {
	post, ok := m.Posts.Selected()
	m.Inspector.SetPost(post, ok)
	offset, n := m.Posts.Window()
	m.core.Focus(m.stream, offset, n)

	var cmds []tea.Cmd
	if ok && m.ShowInspector && post.Author.Avatar != "" && m.Inspector.AvatarURL() != post.Author.Avatar {
		if h, err := m.core.Image(post.Author.Avatar); err == nil {
			m.pending[h.ID] = reqImage
		}
	}
	if m.Posts.NearEnd() && m.core.Snapshot(m.stream).HasMore && !m.loadingKind(reqMore) {
		cmds = append(cmds, m.track(reqMore)(m.core.LoadMore(m.stream, "")))
	}
	return tea.Batch(cmds...)
}

func (m *Model) refresh() tea.Cmd {
	if m.Tab == TabNotifications {
		return m.track(reqOther)(m.core.Refresh(domain.StreamNotifications))
	}
	return m.track(reqOther)(m.core.Refresh(m.stream))
}

// switchTab changes screens. actor selects the profile for TabProfile.
func (m *Model) switchTab(tab Tab, actor string) tea.Cmd {
	m.Tab = tab
	var cmds []tea.Cmd
	switch tab {
	case TabHome:
		m.stream = domain.StreamHome
		m.profileActor = ""
		m.Posts.Reset()
		m.Posts.SetTitle("Home")
	case TabProfile:
		m.stream = domain.ProfileStream(actor)
		m.profileActor = actor
		m.Posts.Reset()
		m.Posts.SetTitle(actor)
		track := m.track(reqOther)
		cmds = append(cmds, track(m.core.LoadCached(m.stream)), track(m.core.OpenProfile(actor)))
	case TabNotifications:
		if m.unread > 0 {
			cmds = append(cmds, m.track(reqOther)(m.core.MarkSeen()))
		}
	}
	m.updateLayout()
	m.syncViews()
	return tea.Batch(cmds...)
}

func (m *Model) openCompose(d domain.Draft, title, context string) tea.Cmd {
	m.draft = d
	m.retryCompose = false
	return m.Compose.Show(title, context)
}

func (m *Model) handleComposeKey(msg tea.KeyMsg) tea.Cmd {
	var cmd tea.Cmd
	var submitted bool
	m.Compose, cmd, submitted = m.Compose.Update(msg)
	if !submitted {
		return cmd
	}
	if m.loadingKind(reqCompose) {
		return m.setStatus("Still posting…")
	}
	d := m.draft
	d.Text = m.Compose.Value()
	return m.track(reqCompose)(m.core.Compose(d, m.retryCompose))
}

func (m *Model) openLink(p domain.Post) tea.Cmd {
	if m.opener == nil {
		return m.setError("No browser configured.")
	}
	link := ""
	if links := components.Links(p); len(links) > 0 {
		link = links[0]
	} else {
		u, err := atproto.WebURL(p)
		if err != nil {
			return m.setError(err.Error())
		}
		link = u
	}
	return OpenLinkCmd(m.opener, link)
}
