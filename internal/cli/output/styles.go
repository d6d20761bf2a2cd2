package output

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/leapstack-labs/leaplineage/internal/lineage"
)

// Styles holds the text styles of a renderer.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style

	Root         lipgloss.Style
	Input        lipgloss.Style
	Output       lipgloss.Style
	NotConnected lipgloss.Style
	Upstream     lipgloss.Style
	Downstream   lipgloss.Style
}

// NewStyles builds styles for the given lipgloss renderer.
func NewStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Header1: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header2: r.NewStyle().Bold(true),
		Bold:    r.NewStyle().Bold(true),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		Success: r.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   r.NewStyle().Foreground(lipgloss.Color("9")),
		Info:    r.NewStyle().Foreground(lipgloss.Color("14")),

		Root:         r.NewStyle().Bold(true).Foreground(lipgloss.Color("13")),
		Input:        r.NewStyle().Foreground(lipgloss.Color("10")),
		Output:       r.NewStyle().Foreground(lipgloss.Color("12")),
		NotConnected: r.NewStyle().Faint(true),
		Upstream:     r.NewStyle().Foreground(lipgloss.Color("10")),
		Downstream:   r.NewStyle().Foreground(lipgloss.Color("12")),
	}
}

// Kind returns the style of a node or column kind.
func (s *Styles) Kind(k lineage.NodeKind) lipgloss.Style {
	switch k {
	case lineage.KindInput:
		return s.Input
	case lineage.KindOutput:
		return s.Output
	case lineage.KindNotConnected:
		return s.NotConnected
	default:
		return lipgloss.NewStyle()
	}
}

// EdgeKind returns the style of a classification.
func (s *Styles) EdgeKind(k lineage.EdgeKind) lipgloss.Style {
	switch k {
	case lineage.UpStream:
		return s.Upstream
	case lineage.DownStream:
		return s.Downstream
	default:
		return s.Warning
	}
}
