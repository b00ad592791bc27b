package transport

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"trackscan/internal/classifier"
	"trackscan/internal/job"
)

const meterWidth = 30

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	labelStyle = lipgloss.NewStyle().Width(18)

	meterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E8544E")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#25A065")).
			Padding(0, 1)
)

// ConsoleSink renders a result card for each finished job.
type ConsoleSink struct {
	mu          sync.Mutex
	w           io.Writer
	predictions map[classifier.ID]float64
	tonal       job.Tonal
}

// NewConsoleSink writes result cards to w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

func (s *ConsoleSink) OnJobStarted(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictions = nil
	s.tonal = job.Tonal{}
}

func (s *ConsoleSink) OnPredictionsUpdated(_ string, predictions map[classifier.ID]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictions = predictions
}

func (s *ConsoleSink) OnTonalProfileUpdated(_ string, t job.Tonal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tonal = t
}

func (s *ConsoleSink) OnJobFinished(jobID string, success bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, RenderCard(jobID, s.predictions, s.tonal, success, err))
}

// RenderCard formats one job's results as a bordered card.
func RenderCard(jobID string, predictions map[classifier.ID]float64, t job.Tonal, success bool, err error) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Analysis " + shortID(jobID)))
	b.WriteString("\n\n")

	if t.Available {
		fmt.Fprintf(&b, "%s %s %s  %s\n",
			labelStyle.Render("key"), t.Profile.Key, t.Profile.Scale,
			dimStyle.Render(fmt.Sprintf("(%.2f)", t.Profile.KeyStrength)))
		fmt.Fprintf(&b, "%s %.1f\n\n", labelStyle.Render("bpm"), t.Profile.BPM)
	} else {
		fmt.Fprintf(&b, "%s %s\n\n", labelStyle.Render("key / bpm"), dimStyle.Render("unavailable"))
	}

	ids := make([]classifier.ID, 0, len(predictions))
	for id := range predictions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		v := predictions[id]
		fmt.Fprintf(&b, "%s %s %s\n", labelStyle.Render(id.String()), meter(v), formatScore(v))
	}

	if !success {
		b.WriteString("\n")
		b.WriteString(failStyle.Render(fmt.Sprintf("failed: %v", err)))
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func meter(v float64) string {
	filled := int(v*meterWidth + 0.5)
	filled = max(0, min(meterWidth, filled))
	return meterStyle.Render(strings.Repeat("█", filled)) + dimStyle.Render(strings.Repeat("░", meterWidth-filled))
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v*100, 'f', 1, 64) + "%"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var _ job.Sink = (*ConsoleSink)(nil)
