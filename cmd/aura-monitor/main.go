// Command aura-monitor is a terminal dashboard that polls a running
// aura-host process's introspection surface and renders whether the host
// is reachable plus the recent ledger entries for each intent kind
// (DEFERRED_ACTION included). It never calls into the orchestrator core directly; it
// only speaks HTTP to /healthz and /v1/state.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var pollInterval = 2 * time.Second

var intentKinds = []string{
	"GUI_INTERACTION",
	"QUESTION_ANSWERING",
	"CONVERSATIONAL_CHAT",
	"DEFERRED_ACTION",
}

type ledgerEntry struct {
	UtteranceID string `json:"utterance_id"`
	IntentKind  string `json:"intent_kind"`
	Status      string `json:"status"`
	Method      string `json:"method"`
	ErrorCode   string `json:"error_code,omitempty"`
}

type stateResponse struct {
	Kind    string        `json:"kind"`
	Entries []ledgerEntry `json:"entries"`
}

type pollResultMsg struct {
	healthy bool
	byKind  map[string][]ledgerEntry
	err     error
}

type model struct {
	baseURL string
	client  *http.Client

	healthy bool
	byKind  map[string][]ledgerEntry
	lastErr error
	polls   int

	styles styles
}

type styles struct {
	title    lipgloss.Style
	section  lipgloss.Style
	ok       lipgloss.Style
	bad      lipgloss.Style
	dim      lipgloss.Style
	errorRow lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		section:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("109")),
		ok:       lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		bad:      lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		dim:      lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
		errorRow: lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	}
}

func newModel(baseURL string) model {
	return model{
		baseURL: baseURL,
		client:  &http.Client{Timeout: pollInterval},
		byKind:  make(map[string][]ledgerEntry),
		styles:  newStyles(),
	}
}

func (m model) Init() tea.Cmd {
	return m.poll()
}

func (m model) poll() tea.Cmd {
	return func() tea.Msg {
		healthy := m.checkHealthz()

		byKind := make(map[string][]ledgerEntry)
		var firstErr error
		for _, kind := range intentKinds {
			entries, err := m.fetchState(kind)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			byKind[kind] = entries
		}
		return pollResultMsg{healthy: healthy, byKind: byKind, err: firstErr}
	}
}

func (m model) checkHealthz() bool {
	resp, err := m.client.Get(m.baseURL + "/healthz")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (m model) fetchState(kind string) ([]ledgerEntry, error) {
	resp, err := m.client.Get(m.baseURL + "/v1/state?kind=" + kind)
	if err != nil {
		return nil, fmt.Errorf("fetching state for %s: %w", kind, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("state for %s: unexpected status %d", kind, resp.StatusCode)
	}
	var sr stateResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decoding state for %s: %w", kind, err)
	}
	return sr.Entries, nil
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg{} })
}

type tickMsg struct{}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case pollResultMsg:
		m.healthy = msg.healthy
		m.byKind = msg.byKind
		m.lastErr = msg.err
		m.polls++
		return m, tickEvery(pollInterval)
	case tickMsg:
		return m, m.poll()
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.title.Render("AURA Orchestrator Monitor") + "\n")
	b.WriteString(m.styles.dim.Render(m.baseURL) + "\n\n")

	if m.healthy {
		b.WriteString(m.styles.ok.Render("● host reachable") + "\n\n")
	} else {
		b.WriteString(m.styles.bad.Render("● host unreachable") + "\n\n")
	}

	for _, kind := range intentKinds {
		b.WriteString(m.styles.section.Render(kind) + "\n")
		entries := m.byKind[kind]
		if len(entries) == 0 {
			b.WriteString(m.styles.dim.Render("  (no recorded activity)") + "\n")
		}
		for _, e := range entries {
			line := fmt.Sprintf("  %-8s %-12s method=%-12s", shortID(e.UtteranceID), e.Status, e.Method)
			if e.ErrorCode != "" {
				line += "  " + m.styles.errorRow.Render("err="+e.ErrorCode)
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}

	if m.lastErr != nil {
		b.WriteString(m.styles.bad.Render("last poll error: "+m.lastErr.Error()) + "\n")
	}
	b.WriteString(m.styles.dim.Render(fmt.Sprintf("polls=%d  press q to quit", m.polls)) + "\n")

	return b.String()
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8077", "base URL of the aura-host introspection surface")
	flag.Parse()

	p := tea.NewProgram(newModel(*addr), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
