package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/chronicle-engine/internal/handlers"
	"github.com/jwebster45206/chronicle-engine/internal/services/events"
	"github.com/jwebster45206/chronicle-engine/pkg/prompts"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
	"github.com/jwebster45206/chronicle-engine/pkg/storage"
)

const (
	AgentName       = "Narrator"
	PlaceHolderText = "What do you do? (a number picks a choice, /help for commands)"
)

const helpText = `
Commands:
• 1-4 - Pick one of the offered choices
• /skill <stat> - Develop a skill from a stat
• /power <name>: <description> - Invent a custom power
• /confirm, /decline - Resolve a pending skill
• /undo - Step back one turn
• /image - Retry the scene image
• /stats - Show the character sheet
• /help - Show this help
• Ctrl+C - Quit
`

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	api          *apiClient
	gameState    *state.GameState
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	loading      bool

	// status is the engine phase of the request in flight; notice is the
	// last local message shown under the story.
	status     string
	notice     string
	lastAction string

	// Session selection state
	showSessionModal bool
	sessions         []storage.Summary
	selectedSession  int
	loadingSessions  bool
	seed             *prompts.Seed
	resumeID         uuid.UUID
	pendingID        uuid.UUID

	events       chan events.Event
	cancelStream context.CancelFunc

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int
}

type uiOption func(*ConsoleUI)

// withSeed creates a new session from seed on start.
func withSeed(seed *prompts.Seed) uiOption {
	return func(m *ConsoleUI) { m.seed = seed }
}

// withSession resumes the given session on start.
func withSession(id uuid.UUID) uiOption {
	return func(m *ConsoleUI) { m.resumeID = id }
}

type sessionsLoadedMsg struct {
	sessions []storage.Summary
	err      error
}

type sessionCreatedMsg struct {
	accepted *handlers.AcceptedResponse
	err      error
}

type gameStateMsg struct {
	resp *handlers.GameStateResponse
	err  error
}

type acceptedMsg struct {
	accepted *handlers.AcceptedResponse
	err      error
}

type streamEventMsg events.Event

type streamClosedMsg struct{}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	choiceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	modalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(api *apiClient, opts ...uiOption) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	m := ConsoleUI{
		api:              api,
		textarea:         ta,
		chatViewport:     chatVp,
		metaViewport:     metaVp,
		showSessionModal: true,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.loadingSessions = m.seed == nil && m.resumeID == uuid.Nil
	m.loading = !m.loadingSessions
	return m
}

func writeMetadata(gs *state.GameState) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("SESSION") + "\n\n")

	content.WriteString("ID:\n")
	content.WriteString(gs.ID.String()[:8] + "...\n\n")

	content.WriteString(fmt.Sprintf("Turns: %d\n", gs.TotalTurns))
	content.WriteString(fmt.Sprintf("Calls: %d (%d tokens)\n\n", gs.TotalRequests, gs.TotalTokens))

	content.WriteString(titleStyle.Render("Character") + "\n")
	if len(gs.PlayerStatOrder) == 0 {
		content.WriteString("No stats yet\n")
	}
	for _, name := range gs.PlayerStatOrder {
		st, ok := gs.PlayerStats[name]
		if !ok {
			continue
		}
		line := fmt.Sprintf("• %s: %s", name, st.Value.String())
		if st.Duration != nil {
			line += fmt.Sprintf(" (%d)", *st.Duration)
		}
		if recentlyUpdated(gs.RecentlyUpdated.Stats, name) {
			line = loadingStyle.Render(line)
		}
		content.WriteString(line + "\n")
	}
	content.WriteString("\n")

	if len(gs.Skills) > 0 {
		content.WriteString(titleStyle.Render("Skills") + "\n")
		for _, sk := range gs.Skills {
			content.WriteString("• " + sk.Name + "\n")
			for _, a := range sk.Abilities {
				content.WriteString("  - " + a.Name + "\n")
			}
		}
		content.WriteString("\n")
	}

	present := make(map[string]bool, len(gs.PresentNPCIDs))
	for _, id := range gs.PresentNPCIDs {
		present[id] = true
	}
	if len(gs.NPCs) > 0 {
		content.WriteString(titleStyle.Render("Characters") + "\n")
		for _, n := range gs.NPCs {
			marker := "  "
			if present[n.ID] {
				marker = "• "
			}
			content.WriteString(marker + n.Name + "\n")
		}
		content.WriteString("\n")
	}

	if len(gs.Chronicle) > 0 {
		content.WriteString(fmt.Sprintf("Chronicle: %d entries\n\n", len(gs.Chronicle)))
	}

	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• /help: Help\n")

	return content.String()
}

func recentlyUpdated(keys []string, name string) bool {
	for _, k := range keys {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

// writeChatContent builds the story from game state for the current viewport width
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6 // Account for left(3) + right(3) padding
	if chatWidth < 20 {
		chatWidth = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("CHRONICLE") + "\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", chatWidth-6)) + "\n\n")

	if m.gameState != nil {
		for _, turn := range m.gameState.History {
			if !turn.IsOpening() {
				content.WriteString(userStyle.Render("You: ") + wordwrap.String(turn.Action(), chatWidth-6) + "\n\n")
			}
			content.WriteString(formatNarratorResponse(turn.StoryText, chatWidth) + "\n\n")
		}
		if !m.loading {
			content.WriteString(m.renderChoices(chatWidth))
		}
	}

	if m.loading {
		if m.lastAction != "" {
			content.WriteString(userStyle.Render("You: ") + wordwrap.String(m.lastAction, chatWidth-6) + "\n\n")
		}
		content.WriteString(m.renderProgressBar() + "\n")
		if m.status != "" {
			content.WriteString(loadingStyle.Render(strings.ReplaceAll(m.status, "_", " ")) + "\n")
		}
	}
	if m.notice != "" {
		content.WriteString("\n" + errorStyle.Render(wordwrap.String(m.notice, chatWidth)) + "\n")
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func (m *ConsoleUI) renderChoices(width int) string {
	gs := m.gameState
	var b strings.Builder
	if last, ok := gs.LastTurn(); ok {
		for i, c := range last.Choices {
			b.WriteString(choiceStyle.Render(wordwrap.String(fmt.Sprintf("%d. %s", i+1, c), width)) + "\n")
		}
		b.WriteString("\n")
	}
	if p := gs.PendingSkill; p != nil {
		b.WriteString(titleStyle.Render("New skill: "+p.Skill.Name) + "\n")
		b.WriteString(wordwrap.String(p.Skill.Description, width) + "\n")
		for _, a := range p.Skill.Abilities {
			b.WriteString(wordwrap.String(fmt.Sprintf("  - %s: %s", a.Name, a.Description), width) + "\n")
		}
		b.WriteString(promptStyle.Render("/confirm to learn it, /decline to let it go") + "\n\n")
	}
	switch {
	case gs.ImageError != "":
		b.WriteString(errorStyle.Render("Image failed: "+gs.ImageError+" (/image to retry)") + "\n")
	case gs.LastImage != "" && !strings.HasPrefix(gs.LastImage, "data:"):
		b.WriteString(promptStyle.Render("Image: "+gs.LastImage) + "\n")
	}
	return b.String()
}

func (m ConsoleUI) Init() tea.Cmd {
	switch {
	case m.seed != nil:
		return m.createSession(m.seed)
	case m.resumeID != uuid.Nil:
		return m.fetchGameState(m.resumeID)
	default:
		return m.loadSessions()
	}
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Stream events are handled in every mode so the creation flow can
	// complete while the modal is up.
	switch msg := msg.(type) {
	case streamEventMsg:
		return m.handleEvent(events.Event(msg))
	case streamClosedMsg:
		m.events = nil
		if m.cancelStream != nil {
			m.notice = "Event stream closed; restart the console to reconnect."
			m.loading = false
			m.writeChatContent()
		}
		return m, nil
	case gameStateMsg:
		return m.handleGameState(msg)
	}

	// Handle session modal first
	if m.showSessionModal {
		return m.updateSessionModal(msg)
	}

	// Handle quit modal second
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.textarea, tiCmd = m.textarea.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(tiCmd, vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.writeChatContent()
		if m.gameState != nil {
			m.metaViewport.SetContent(writeMetadata(m.gameState))
		}

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()
			return m.handleInput(input)
		}

	case acceptedMsg:
		if msg.err != nil {
			m.loading = false
			m.lastAction = ""
			m.notice = describeError(msg.err)
			m.writeChatContent()
		}
		return m, nil

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeChatContent()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

func (m *ConsoleUI) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	chatWidth := int(float64(m.width)*0.7) - 4
	metaWidth := m.width - chatWidth - 6
	m.chatViewport.Width = chatWidth - 2
	m.chatViewport.Height = m.height - 7
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
	m.textarea.SetWidth(chatWidth - 4)
	m.ready = true
}

func describeError(err error) string {
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
		return "The narrator is still working on the last request."
	}
	return "Error: " + err.Error()
}

// handleInput maps a line of input to a local command or an API operation.
func (m ConsoleUI) handleInput(input string) (tea.Model, tea.Cmd) {
	m.notice = ""
	id := m.gameState.ID

	if !strings.HasPrefix(input, "/") {
		if n, err := strconv.Atoi(input); err == nil {
			last, ok := m.gameState.LastTurn()
			if !ok || n < 1 || n > len(last.Choices) {
				m.notice = fmt.Sprintf("There is no choice %d.", n)
				m.writeChatContent()
				return m, nil
			}
			input = last.Choices[n-1]
		}
		return m.submit(input, id, "action", handlers.ActionRequest{Action: input})
	}

	name, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(name) {
	case "/help":
		m.notice = ""
		current := m.chatViewport.View()
		m.chatViewport.SetContent(current + "\n" + titleStyle.Render("Help:") + helpText + "\n")
		m.chatViewport.GotoBottom()
		return m, nil
	case "/stats":
		m.metaViewport.SetContent(writeMetadata(m.gameState))
		m.metaViewport.GotoTop()
		return m, nil
	case "/undo":
		return m.submit("", id, "undo", nil)
	case "/image":
		return m.submit("", id, "image", nil)
	case "/confirm":
		return m.submit("", id, "skill/confirm", nil)
	case "/decline":
		return m.submit("", id, "skill/decline", nil)
	case "/skill":
		if rest == "" {
			m.notice = "Usage: /skill <stat>"
			break
		}
		return m.submit("", id, "skill/from-stat", handlers.SkillRequest{StatName: rest})
	case "/power":
		power, desc, _ := strings.Cut(rest, ":")
		if strings.TrimSpace(power) == "" {
			m.notice = "Usage: /power <name>: <description>"
			break
		}
		return m.submit("", id, "skill/custom", handlers.SkillRequest{
			Name:        strings.TrimSpace(power),
			Description: strings.TrimSpace(desc),
		})
	default:
		m.notice = "Unknown command " + name + ". Type /help for commands."
	}
	m.writeChatContent()
	return m, nil
}

func (m ConsoleUI) submit(action string, id uuid.UUID, op string, body any) (tea.Model, tea.Cmd) {
	m.loading = true
	m.status = "queued"
	m.lastAction = action
	m.progressTick = 0
	m.writeChatContent()
	api := m.api
	send := func() tea.Msg {
		accepted, err := api.operation(id, op, body)
		return acceptedMsg{accepted, err}
	}
	return m, tea.Batch(send, progressTick())
}

func (m ConsoleUI) handleEvent(ev events.Event) (tea.Model, tea.Cmd) {
	next := waitForEvent(m.events)
	switch ev.Type {
	case "connected":
		// Catch a request that finished before the subscription
		id := m.pendingID
		if m.gameState != nil {
			id = m.gameState.ID
		}
		return m, tea.Batch(next, m.fetchGameState(id))
	case events.EventTypeRequestProcessing:
		start := !m.loading
		m.loading = true
		m.status = "processing"
		if action, ok := ev.Data["action"].(string); ok && m.lastAction == "" {
			m.lastAction = action
		}
		m.writeChatContent()
		if start {
			return m, tea.Batch(next, progressTick())
		}
	case events.EventTypePhaseChanged:
		if phase, ok := ev.Data["phase"].(string); ok {
			m.status = phase
		}
	case events.EventTypeRequestCompleted:
		m.loading = false
		m.status = ""
		m.lastAction = ""
		if gs := gameStateFrom(ev); gs != nil {
			m.setGameState(gs)
		} else if m.gameState != nil {
			return m, tea.Batch(next, m.fetchGameState(m.gameState.ID))
		}
	case events.EventTypeRequestFailed:
		m.loading = false
		m.status = ""
		m.lastAction = ""
		msg, _ := ev.Data["error"].(string)
		m.notice = "The narrator stumbled: " + msg
		if ok, _ := ev.Data["recoverable"].(bool); ok {
			m.notice += " Nothing was changed; try again."
		}
		if m.gameState == nil {
			// Opening turn failed
			m.err = errors.New(msg)
		} else {
			m.writeChatContent()
		}
	}
	return m, next
}

func (m ConsoleUI) handleGameState(msg gameStateMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		var apiErr *apiError
		if errors.As(msg.err, &apiErr) && apiErr.Status == http.StatusNotFound && m.pendingID != uuid.Nil {
			// Opening turn still running
			return m, nil
		}
		m.err = msg.err
		m.loading = false
		return m, nil
	}
	first := m.gameState == nil
	m.setGameState(msg.resp.GameState)
	if msg.resp.Pending > 0 && !m.loading {
		m.loading = true
		m.status = "queued"
		m.writeChatContent()
	}
	return m, m.stream(first)
}

// stream opens the event stream once a session is known.
func (m *ConsoleUI) stream(first bool) tea.Cmd {
	if !first || m.events != nil || m.gameState == nil {
		if m.loading {
			return progressTick()
		}
		return textarea.Blink
	}
	return tea.Batch(m.startStream(m.gameState.ID), textarea.Blink)
}

func (m *ConsoleUI) setGameState(gs *state.GameState) {
	m.gameState = gs
	m.pendingID = uuid.Nil
	if m.showSessionModal {
		m.showSessionModal = false
		m.loading = false
		m.textarea.Focus()
		m.layout()
	}
	m.writeChatContent()
	m.metaViewport.SetContent(writeMetadata(gs))
}

func (m *ConsoleUI) startStream(id uuid.UUID) tea.Cmd {
	if m.cancelStream != nil {
		m.cancelStream()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelStream = cancel
	ch := make(chan events.Event, 16)
	m.events = ch
	api := m.api
	go func() {
		_ = api.listenToSSE(ctx, id, ch)
	}()
	return waitForEvent(ch)
}

func waitForEvent(ch <-chan events.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return streamEventMsg(ev)
	}
}

func formatNarratorResponse(response string, width int) string {
	// Check if response already has a speaker prefix
	hasPrefix := false
	if idx := strings.Index(response, ":"); idx > 0 && idx <= 20 {
		speaker := response[:idx]
		if len(strings.Fields(speaker)) <= 2 {
			hasPrefix = true
		}
	}

	// If no prefix, we'll add "Narrator: " so reduce available width
	wrapWidth := width
	if !hasPrefix {
		narratorPrefix := AgentName + ": "
		wrapWidth = width - len(narratorPrefix)
	}

	wrappedResponse := wordwrap.String(response, wrapWidth)
	lines := strings.Split(wrappedResponse, "\n")
	var formattedLines []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			formattedLines = append(formattedLines, "")
			continue
		}

		if idx := strings.Index(trimmed, ":"); idx > 0 && idx <= 20 {
			speaker := trimmed[:idx]
			rest := trimmed[idx+1:]
			if len(strings.Fields(speaker)) <= 2 {
				formattedLines = append(formattedLines, speakerStyle.Render(speaker+":")+rest)
				continue
			}
		}

		formattedLines = append(formattedLines, line)
	}

	result := strings.Join(formattedLines, "\n")
	if !hasPrefix {
		result = narratorStyle.Render(AgentName+": ") + result
	}

	return result
}

func (m ConsoleUI) fetchGameState(id uuid.UUID) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		resp, err := api.getGameState(id)
		return gameStateMsg{resp, err}
	}
}

func (m ConsoleUI) loadSessions() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		sessions, err := api.listGameStates()
		return sessionsLoadedMsg{sessions, err}
	}
}

func (m ConsoleUI) createSession(seed *prompts.Seed) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		accepted, err := api.createGameState(seed)
		return sessionCreatedMsg{accepted, err}
	}
}

func (m ConsoleUI) updateSessionModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case sessionsLoadedMsg:
		m.loadingSessions = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.sessions = msg.sessions
		}

	case sessionCreatedMsg:
		if msg.err != nil {
			m.loading = false
			m.err = msg.err
			return m, nil
		}
		m.pendingID = msg.accepted.GameStateID
		return m, m.startStream(m.pendingID)

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			if m.loadingSessions || m.err != nil {
				return m, tea.Quit
			}
			m.showQuitModal = true
			m.showSessionModal = false
			return m, nil
		}
		if m.loadingSessions || m.loading || m.err != nil {
			return m, nil
		}

		switch msg.Type {
		case tea.KeyUp:
			if m.selectedSession > 0 {
				m.selectedSession--
			}
		case tea.KeyDown:
			if m.selectedSession < len(m.sessions)-1 {
				m.selectedSession++
			}
		case tea.KeyEnter:
			if len(m.sessions) > 0 {
				m.loading = true
				return m, m.fetchGameState(m.sessions[m.selectedSession].ID)
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m.quit()
		default:
			switch msg.String() {
			case "y", "Y":
				return m.quit()
			case "n", "N":
				m.showQuitModal = false
				if m.gameState == nil {
					m.showSessionModal = true
					return m, nil
				}
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) quit() (tea.Model, tea.Cmd) {
	if m.cancelStream != nil {
		m.cancelStream()
		m.cancelStream = nil
	}
	return m, tea.Quit
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	content.WriteString("Your session is saved after every turn.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderSessionModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder

	switch {
	case m.err != nil:
		content.WriteString(modalTitleStyle.Render("Error"))
		content.WriteString("\n\n")
		content.WriteString(errorStyle.Render(wordwrap.String(m.err.Error(), 50)))
		content.WriteString("\n\n")
		content.WriteString("Press Ctrl+C to exit")
	case m.loadingSessions:
		content.WriteString(modalTitleStyle.Render("Loading Sessions..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Please wait while we fetch saved sessions..."))
	case m.loading && m.seed != nil:
		content.WriteString(modalTitleStyle.Render("Creating Session..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("The narrator is setting the scene..."))
		if m.status != "" {
			content.WriteString("\n" + promptStyle.Render(strings.ReplaceAll(m.status, "_", " ")))
		}
	case m.loading:
		content.WriteString(modalTitleStyle.Render("Loading Session..."))
	case len(m.sessions) == 0:
		content.WriteString(modalTitleStyle.Render("No Saved Sessions"))
		content.WriteString("\n\n")
		content.WriteString("Start one with: console <seed.yaml>\n\n")
		content.WriteString(promptStyle.Render("Press Ctrl+C to exit"))
	default:
		content.WriteString(modalTitleStyle.Render("Select a Session"))
		content.WriteString("\n\n")
		for i, s := range m.sessions {
			label := fmt.Sprintf("%s (%d turns)", s.Title, s.TotalTurns)
			if i == m.selectedSession {
				content.WriteString(modalSelectedItemStyle.Render("▶ " + label))
			} else {
				content.WriteString(modalItemStyle.Render("  " + label))
			}
			content.WriteString("\n")
		}
		content.WriteString("\n")
		content.WriteString(promptStyle.Render("Use ↑/↓ to navigate, Enter to select, Ctrl+C to exit"))
	}

	modal := modalStyle.Width(60).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if m.showSessionModal {
		return m.renderSessionModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.7) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", chatWidth-4)),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable <= 0 {
		usable = 30 // fallback before sizing
	}
	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓") // Blinking effect at the progress point
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
