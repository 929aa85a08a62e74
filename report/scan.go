package report

import (
	"fmt"
	"time"

	"github.com/arloliu/go-eyescan/scandata"
)

// Param is a resolved scan parameter.
type Param struct {
	Name  string
	Value any
}

// ScanSummary is the state of a scan session to report.
type ScanSummary struct {
	Name      string
	Kind      string
	Target    string
	Status    string
	Progress  float64
	StartTime time.Time
	StopTime  time.Time
	Version   string
	LastError error

	Parameters []Param

	// MeasuredPoints is the number of processed points.
	MeasuredPoints int
	// TotalPoints is the size of the sweep grid, 0 if unknown.
	TotalPoints int
	// Eye is set for completed eye scans.
	Eye *scandata.Summary
}

const timeLayout = "2006-01-02 15:04:05.000"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.Format(timeLayout)
}

func percent(f float64) string {
	return fmt.Sprintf("%.2f%%", f*100)
}

// FormatScan renders s as a property/value table followed by the parameter table.
func FormatScan(s ScanSummary) string {
	info := &table{header: []string{"PROPERTY", "VALUE"}}
	info.add("Name", s.Name)
	info.add("Kind", s.Kind)
	info.add("Target", s.Target)
	info.add("Status", s.Status)
	info.add("Progress", fmt.Sprintf("%.1f%%", s.Progress*100))
	info.add("Start time", formatTime(s.StartTime))
	info.add("Stop time", formatTime(s.StopTime))
	if s.Version != "" {
		info.add("Version", s.Version)
	}

	points := fmt.Sprint(s.MeasuredPoints)
	if s.TotalPoints > 0 {
		points = fmt.Sprintf("%d of %d", s.MeasuredPoints, s.TotalPoints)
	}
	info.add("Points", points)

	if eye := s.Eye; eye != nil {
		info.add("Target BER", fmt.Sprintf("%g", eye.TargetBER))
		info.add("Open area", fmt.Sprintf("%d (%s, %s)", eye.OpenArea, percent(eye.OpenPercentage), eye.Mode))
		info.add("Horizontal opening", fmt.Sprintf("%d (%s)", eye.HorizontalOpening, percent(eye.HorizontalPercentage)))
		info.add("Vertical opening", fmt.Sprintf("%d (%s)", eye.VerticalOpening, percent(eye.VerticalPercentage)))
	}

	if s.LastError != nil {
		info.add("Last error", s.LastError.Error())
	}

	out := info.render()
	if len(s.Parameters) == 0 {
		return out
	}

	params := &table{header: []string{"PARAMETER", "VALUE"}}
	for _, p := range s.Parameters {
		params.add(p.Name, formatValue(p.Value))
	}

	return out + "\n" + params.render()
}

// Scan renders s into sink.
func Scan(s ScanSummary, sink Sink) {
	sink.write(FormatScan(s))
}
