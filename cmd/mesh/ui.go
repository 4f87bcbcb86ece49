package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
	"github.com/Manishrsh/video-chat-connectify-app/internal/core/mesh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	primary = lipgloss.Color("#22d3ee")
	accent  = lipgloss.Color("#7C3AED")
	success = lipgloss.Color("#10B981")
	warning = lipgloss.Color("#F59E0B")
	danger  = lipgloss.Color("#EF4444")
	muted   = lipgloss.Color("#6B7280")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primary)
	senderStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
	privateStyle = lipgloss.NewStyle().Italic(true).Foreground(warning)
	systemStyle  = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(success)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(danger)
	captionStyle = lipgloss.NewStyle().Italic(true).Foreground(muted)

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(primary).Align(lipgloss.Center)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func stamp(t time.Time) string {
	return systemStyle.Render(t.Local().Format(time.TimeOnly))
}

func system(format string, args ...any) {
	fmt.Println(stamp(time.Now()), systemStyle.Render(fmt.Sprintf(format, args...)))
}

func printChat(msg domain.ChatMessage, me string) {
	line := senderStyle.Render(msg.Sender) + ": " + msg.Text
	if msg.Private() {
		if !msg.For(me) {
			return
		}
		line = privateStyle.Render("(to "+msg.Recipient+") ") + line
	}
	fmt.Println(stamp(msg.Timestamp), line)
}

func printTranscript(t domain.Transcript) {
	fmt.Println(stamp(time.Now()), captionStyle.Render("["+t.Sender+"] "+t.Text))
}

func linksTable(links []mesh.LinkInfo) string {
	if len(links) == 0 {
		return systemStyle.Render("No peers")
	}
	rows := make([][]string, 0, len(links))
	for _, l := range links {
		name := l.DisplayName
		if name == "" {
			name = "-"
		}
		rows = append(rows, []string{fmt.Sprint(l.ID), name, string(l.Remote), string(l.Role), string(l.State)})
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(primary)).
		Headers("#", "Name", "Session", "Role", "State").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

func rosterLine(roster []domain.Member, hands map[domain.SessionID]bool) string {
	if len(roster) == 0 {
		return systemStyle.Render("You are alone in the room")
	}
	parts := make([]string, 0, len(roster))
	for _, m := range roster {
		s := m.DisplayName
		if m.Muted {
			s += " 🔇"
		}
		if m.VideoOff {
			s += " 📷✗"
		}
		if hands[m.SessionID] {
			s += " ✋"
		}
		parts = append(parts, s)
	}
	return titleStyle.Render("In the room: ") + strings.Join(parts, ", ")
}

const helpText = `Commands:
  <text>            chat with everyone
  /to <name> <text> chat addressed to one participant
  /mute /unmute     toggle microphone
  /video on|off     toggle camera
  /share /unshare   screen share
  /hand /lower      raise or lower your hand
  /open /close      chat panel (unread tracking)
  /ping             measure round trip on every link
  /links /who       show links or roster
  /leave            leave the room and quit`
