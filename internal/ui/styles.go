package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	addrStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	markerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	warnStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	helpKeyStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	helpSepStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
)

func addrCell(host string, port uint16) string {
	return fmt.Sprintf("%15s:%-5d ", host, port)
}

// FormatResource renders one discovered resource row.
func FormatResource(host string, port uint16, path string, selected bool) string {
	if selected {
		path = selectedStyle.Render(path)
	}
	return addrStyle.Render(addrCell(host, port)) + path + "\n"
}

// FormatTransferPrefix renders the fixed head of a transfer's row. The
// arrow points the way the bytes flow.
func FormatTransferPrefix(name, peer string, inbound bool) string {
	arrow := "=>"
	if inbound {
		arrow = "<="
	}
	return activeStyle.Render("[Active]") + markerStyle.Render(" I ") +
		fmt.Sprintf("%q %s %s (", name, arrow, peer)
}

// TransferSuffix closes a transfer's row.
const TransferSuffix = ")\n"

// FormatQuitWarning renders the armed-quit notice shown while transfers
// are still running.
func FormatQuitWarning() string {
	return "  " + warnStyle.Render("Active transfers; type `q` again to force exit") + "\n"
}

// FormatPrompt renders a pending yes/no question.
func FormatPrompt(question string) string {
	return "  " + warnStyle.Render(question+" [y/N]") + "\n"
}

// FormatHelp renders the key reference line.
func FormatHelp() string {
	bindings := []struct{ key, action string }{
		{"q", "Quit"},
		{"r", "Refresh"},
		{"a", "Get all"},
		{"SPC", "Download"},
	}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		parts = append(parts, helpKeyStyle.Render(b.key)+helpSepStyle.Render(":")+b.action)
	}
	return strings.Join(parts, helpSepStyle.Render(", "))
}
