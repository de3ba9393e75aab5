// internal/ui/picker.go

// Package ui holds the small interactive screens shown before a session takes
// over the terminal: the host picker and the secret prompt.
package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/nonomal/termora-sub000/internal/models"
)

// ErrCancelled zwracany gdy użytkownik zamknie ekran bez wyboru
var ErrCancelled = errors.New("cancelled")

// HostItem implementuje list.Item dla hosta
type HostItem struct {
	host models.Host
}

func (i HostItem) Title() string { return i.host.Name }

func (i HostItem) Description() string {
	switch i.host.Protocol {
	case models.ProtocolSSH:
		desc := fmt.Sprintf("ssh %s@%s", i.host.Username, i.host.Address())
		if len(i.host.Options.JumpHosts) > 0 {
			desc += fmt.Sprintf(" via %d jump host(s)", len(i.host.Options.JumpHosts))
		}
		return withRemark(desc, i.host.Remark)
	case models.ProtocolSerial:
		return withRemark("serial "+i.host.Options.SerialComm.Port, i.host.Remark)
	default:
		return withRemark(strings.ToLower(string(i.host.Protocol)), i.host.Remark)
	}
}

func (i HostItem) FilterValue() string { return i.host.Name + " " + i.host.Host }

func withRemark(desc, remark string) string {
	if remark == "" {
		return desc
	}
	return desc + " · " + remark
}

type pickerModel struct {
	list     list.Model
	selected *models.Host
	quitting bool
}

func newPickerModel(hosts []models.Host) pickerModel {
	items := make([]list.Item, 0, len(hosts))
	for _, h := range hosts {
		if h.Connectable() {
			items = append(items, HostItem{host: h})
		}
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Hosts"
	l.Styles.Title = TitleStyle
	l.SetShowHelp(true)
	l.SetFilteringEnabled(true)
	return pickerModel{list: l}
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h, v := WindowStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v)
		return m, nil

	case tea.KeyMsg:
		// W trakcie filtrowania klawisze należą do listy
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(HostItem); ok {
				host := item.host
				m.selected = &host
				return m, tea.Quit
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m pickerModel) View() string {
	if m.selected != nil || m.quitting {
		return ""
	}
	return WindowStyle.Render(m.list.View())
}

// Pick pokazuje listę hostów i zwraca wybrany rekord
func Pick(hosts []models.Host) (*models.Host, error) {
	m := newPickerModel(hosts)
	if len(m.list.Items()) == 0 {
		return nil, errors.New("no hosts configured")
	}

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return nil, fmt.Errorf("host picker failed: %v", err)
	}
	picked := final.(pickerModel)
	if picked.selected == nil {
		return nil, ErrCancelled
	}
	return picked.selected, nil
}
