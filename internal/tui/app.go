// Package tui is the terminal front end. It drains the core's result
// channel inside the Bubble Tea loop, so Apply and every snapshot read
// happen on the program goroutine.
package tui

import (
	"errors"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/mmcdole/hangar/internal/coordinator"
	"github.com/mmcdole/hangar/internal/domain"
	"github.com/mmcdole/hangar/internal/service"
	"github.com/mmcdole/hangar/internal/settings"
	"github.com/mmcdole/hangar/internal/tui/components"
	"github.com/mmcdole/hangar/internal/tui/styles"
)

// ApplicationState represents the current state of the application
type ApplicationState int

const (
	StateStarting ApplicationState = iota // resuming the stored session
	StateLogin
	StateBrowsing
	StateHelp
	StateConfirmLogout
	StateConfirmDelete
)

// Tab is the top-level screen shown while browsing
type Tab int

const (
	TabHome Tab = iota
	TabNotifications
	TabProfile
)

const (
	statusDuration = 4 * time.Second
	tickInterval   = 100 * time.Millisecond

	// ChromeHeight is the tab bar plus the footer line
	ChromeHeight = 2
)

// Opener opens links outside the terminal
type Opener interface {
	Open(url string) error
}

// request kinds the model waits on
type requestKind int

const (
	reqOther requestKind = iota
	reqMore
	reqCompose
	reqLogin
	reqImage
)

// Model is the main Bubble Tea model for the application
type Model struct {
	State ApplicationState
	Ready bool
	Tab   Tab

	core     *service.Core
	opener   Opener
	logger   *slog.Logger
	settings settings.Settings

	// UI Components
	Posts         *components.PostList
	Notifications *components.NotificationList
	Inspector     components.Inspector
	Compose       components.ComposeModal
	Login         components.LoginForm

	// displayed post stream: home or a profile stream
	stream       string
	profileActor string
	mentionsOnly bool

	draft        domain.Draft // reply/quote references of the open editor
	retryCompose bool         // the last compose failed in transit
	deleting     domain.PostRef

	// requests started from the UI, by envelope ID
	pending map[uuid.UUID]requestKind

	unseen        int
	unread        int
	cacheDegraded bool

	// Dimensions
	Width  int
	Height int

	// UI state
	StatusMsg     string
	StatusIsErr   bool
	statusSeq     int
	SpinnerFrame  int
	ShowInspector bool
}

// NewModel creates a new application model
func NewModel(core *service.Core, opener Opener, prefs settings.Settings, logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}
	styles.UseScheme(string(prefs.ColorScheme))

	m := Model{
		State:         StateStarting,
		core:          core,
		opener:        opener,
		logger:        logger,
		settings:      prefs,
		Posts:         components.NewPostList("Home"),
		Notifications: components.NewNotificationList(),
		Inspector:     components.NewInspector(),
		Login:         components.NewLoginForm(),
		stream:        domain.StreamHome,
		pending:       make(map[uuid.UUID]requestKind),
		ShowInspector: true,
	}
	m.Compose = components.NewComposeModal(core.SuggestHandles)
	return m
}

// Init initializes the application
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		WaitForResultCmd(m.core.Results()),
		func() tea.Msg { return startMsg{} },
	}
	if !m.settings.ReduceMotion {
		cmds = append(cmds, TickCmd(tickInterval))
	}
	return tea.Batch(cmds...)
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Ready = true
		m.updateLayout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case startMsg:
		cmd := m.track(reqOther)(m.core.SubmitResume())
		return m, cmd

	case ResultMsg:
		cmd := m.handleResult(msg.Env)
		return m, tea.Batch(cmd, WaitForResultCmd(m.core.Results()))

	case ResultsClosedMsg:
		return m, tea.Quit

	case TickMsg:
		m.SpinnerFrame++
		return m, TickCmd(tickInterval)

	case ClearStatusMsg:
		if msg.seq == m.statusSeq {
			m.StatusMsg = ""
			m.StatusIsErr = false
		}
		return m, nil

	case LinkOpenedMsg:
		var cmd tea.Cmd
		if msg.Err != nil {
			cmd = m.setError("Couldn't open link: " + msg.Err.Error())
		} else {
			cmd = m.setStatus("Opened in browser")
		}
		return m, cmd
	}

	cmd := m.forwardToInputs(msg)
	return m, cmd
}

// forwardToInputs passes cursor blink and other component messages on
func (m *Model) forwardToInputs(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch {
	case m.Compose.IsVisible():
		m.Compose, cmd, _ = m.Compose.Update(msg)
	case m.State == StateLogin:
		m.Login, cmd, _ = m.Login.Update(msg)
	case m.Posts.IsFiltering():
		cmd = m.Posts.Update(msg)
	}
	return cmd
}

// track returns a function recording a submitted request, so that the
// result can be matched when it arrives. Submission errors become status.
func (m *Model) track(kind requestKind) func(coordinator.Handle, error) tea.Cmd {
	return func(h coordinator.Handle, err error) tea.Cmd {
		if err != nil {
			if errors.Is(err, service.ErrNoMore) {
				return nil
			}
			if errors.Is(err, domain.ErrNotAuthenticated) {
				m.showLogin("")
				return nil
			}
			return m.setError(errorText(err))
		}
		m.pending[h.ID] = kind
		m.Posts.SetLoading(m.loading())
		return nil
	}
}

func (m Model) loading() bool {
	return len(m.pending) > 0
}

func (m *Model) loadingKind(kind requestKind) bool {
	for _, k := range m.pending {
		if k == kind {
			return true
		}
	}
	return false
}

// handleResult applies one envelope and reacts to what changed
func (m *Model) handleResult(env coordinator.Envelope) tea.Cmd {
	kind, mine := m.pending[env.ID]
	delete(m.pending, env.ID)

	u := m.core.Apply(env)
	var cmds []tea.Cmd
	defer m.syncViews()

	m.noteWarnings(u.Warnings, &cmds)

	if u.Stale {
		return tea.Batch(cmds...)
	}

	if u.Err != nil {
		cmds = append(cmds, m.handleError(u, kind, mine))
		return tea.Batch(cmds...)
	}

	if u.Session != nil {
		cmds = append(cmds, m.handleSession(*u.Session))
	}
	if u.Image != nil {
		m.Inspector.SetAvatar(u.Image.URL, u.Image.Data)
	}
	if c := u.Confirmation; c != nil {
		if kind == reqCompose {
			m.retryCompose = false
			m.Compose.Hide()
		}
		cmds = append(cmds, m.setStatus(confirmationText(*c)))
	}
	if u.NeedsRefresh && u.Stream == m.stream {
		cmds = append(cmds, m.track(reqOther)(m.core.Refresh(m.stream)))
	}
	if u.NewCount > 0 && u.Stream == domain.StreamNotifications && m.Tab != TabNotifications {
		cmds = append(cmds, m.setStatus(pluralize(u.NewCount, "new notification")))
	}
	return tea.Batch(cmds...)
}

func (m *Model) handleError(u service.Update, kind requestKind, mine bool) tea.Cmd {
	err := u.Err
	switch {
	case errors.Is(err, domain.ErrNotAuthenticated),
		u.Stream == service.StreamSession && m.State != StateBrowsing:
		msg := ""
		if kind == reqLogin || err != domain.ErrNotAuthenticated {
			msg = errorText(err)
		}
		m.showLogin(msg)
		return nil
	case domain.Categorize(err) == domain.CategoryAuthentication:
		m.showLogin(errorText(err))
		return nil
	case kind == reqCompose:
		// keep the draft; a second attempt may duplicate the post
		m.retryCompose = domain.Categorize(err) == domain.CategoryConnectivity
		return m.setError(errorText(err) + " Press C-s to try again.")
	case kind == reqImage:
		m.logger.Debug("avatar not loaded", "error", err)
		return nil
	case !mine && u.Kind == coordinator.KindFetch:
		// background polls fail quietly
		m.logger.Debug("background fetch failed", "stream", u.Stream, "error", err)
		return nil
	}
	return m.setError(errorText(err))
}

func (m *Model) handleSession(change service.SessionChange) tea.Cmd {
	if change.Session == nil {
		m.showLogin("Signed out.")
		m.resetScreens()
		return nil
	}

	m.State = StateBrowsing
	m.Login = components.NewLoginForm()
	if change.Previous != nil && change.Previous.AccountID() != change.Session.AccountID() {
		m.resetScreens()
	}

	track := m.track(reqOther)
	cmds := []tea.Cmd{
		track(m.core.LoadCached(domain.StreamHome)),
		track(m.core.Refresh(domain.StreamHome)),
		track(m.core.LoadCached(domain.StreamNotifications)),
		track(m.core.Refresh(domain.StreamNotifications)),
	}
	status := "Signed in as @" + change.Session.Handle
	if !change.Persisted {
		status += " (secret storage unavailable, you will need to sign in again next time)"
	}
	cmds = append(cmds, m.setStatus(status))
	return tea.Batch(cmds...)
}

func (m *Model) noteWarnings(warnings []error, cmds *[]tea.Cmd) {
	for _, w := range warnings {
		switch {
		case errors.Is(w, domain.ErrCache):
			if !m.cacheDegraded {
				m.cacheDegraded = true
				*cmds = append(*cmds, m.setError("Local cache unavailable, continuing online only."))
			}
		default:
			m.logger.Debug("result warning", "warning", w)
		}
	}
}

func (m *Model) showLogin(errText string) {
	m.State = StateLogin
	m.Compose.Hide()
	m.Login.SetBusy(false)
	if errText != "" {
		m.Login.SetError(errText)
	}
}

func (m *Model) resetScreens() {
	m.Tab = TabHome
	m.stream = domain.StreamHome
	m.profileActor = ""
	m.Posts.Reset()
	m.Posts.SetTitle("Home")
	m.Notifications = components.NewNotificationList()
	m.Notifications.SetSize(m.contentSize())
	m.Inspector = components.NewInspector()
	m.cacheDegraded = false
	m.updateLayout()
}

// syncViews copies the core's snapshots into the components
func (m *Model) syncViews() {
	if m.State != StateBrowsing && m.State != StateHelp &&
		m.State != StateConfirmLogout && m.State != StateConfirmDelete {
		return
	}
	snap := m.core.Snapshot(m.stream)
	m.Posts.SetPosts(snap.Posts)
	m.Posts.SetHasMore(snap.HasMore)
	m.Posts.SetLoading(m.loading())
	m.unseen = snap.Unseen
	if m.Tab == TabProfile {
		m.Posts.SetTitle(profileTitle(snap.Profile, m.profileActor))
	}

	notes := m.core.Notifications(m.mentionsOnly)
	m.unread = notes.Unread
	m.Notifications.SetItems(notes.Items, notes.Unread, m.mentionsOnly)

	p, ok := m.Posts.Selected()
	m.Inspector.SetPost(p, ok)

	offset, n := m.Posts.Window()
	m.core.Focus(m.stream, offset, n)
}

// setStatus shows msg in the footer for a few seconds
func (m *Model) setStatus(msg string) tea.Cmd {
	m.statusSeq++
	m.StatusMsg = msg
	m.StatusIsErr = false
	return ClearStatusCmd(m.statusSeq, statusDuration)
}

func (m *Model) setError(msg string) tea.Cmd {
	cmd := m.setStatus(msg)
	m.StatusIsErr = true
	return cmd
}

// errorText prefers the user-facing message for known categories.
func errorText(err error) string {
	if errors.Is(err, domain.ErrInvalidCredentials) || domain.Categorize(err) != domain.CategoryUnknown {
		return domain.UserMessage(err)
	}
	return err.Error()
}

func confirmationText(c domain.Confirmation) string {
	var text string
	switch c.Kind {
	case domain.ActionLike:
		text = "Liked"
	case domain.ActionUnlike:
		text = "Like removed"
	case domain.ActionRepost:
		text = "Reposted"
	case domain.ActionUnrepost:
		text = "Repost removed"
	case domain.ActionCreatePost:
		text = "Posted"
	case domain.ActionCreateReply:
		text = "Reply posted"
	case domain.ActionCreateQuote:
		text = "Quote posted"
	case domain.ActionDeletePost:
		text = "Post deleted"
	default:
		text = "Done"
	}
	if c.Noop {
		text += " (already)"
	}
	return text
}

func profileTitle(p *domain.Profile, actor string) string {
	if p == nil {
		return actor
	}
	title := p.DisplayName
	if title == "" {
		title = p.Handle
	}
	return title + " @" + p.Handle
}
