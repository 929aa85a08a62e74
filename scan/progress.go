package scan

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/theckman/yacspin"
	"golang.org/x/time/rate"
)

// DefaultProgressInterval is the minimum interval between two redraws of the default indicator.
const DefaultProgressInterval = 200 * time.Millisecond

// ProgressIndicator displays the progress of one scan run. It has no effect on scan data.
//
// All methods are called from the session's callback task.
type ProgressIndicator interface {
	Start() error
	Update(fraction float64)
	Stop(status Status, err error)
}

// IndicatorFactory creates the progress indicator of a session run.
type IndicatorFactory func(name string) (ProgressIndicator, error)

// SpinnerFactory returns an IndicatorFactory that draws a terminal spinner into w, redrawn at most
// once per interval. A nil w writes to standard error.
func SpinnerFactory(w io.Writer, interval time.Duration) IndicatorFactory {
	if w == nil {
		w = os.Stderr
	}
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	return func(name string) (ProgressIndicator, error) {
		sp, err := yacspin.New(yacspin.Config{
			Writer:            w,
			Frequency:         interval,
			CharSet:           yacspin.CharSets[9],
			Suffix:            " " + name,
			SuffixAutoColon:   true,
			Message:           "0.0%",
			StopCharacter:     "✓",
			StopColors:        []string{"fgGreen"},
			StopFailCharacter: "✗",
			StopFailColors:    []string{"fgRed"},
		})
		if err != nil {
			return nil, fmt.Errorf("create progress indicator: %w", err)
		}

		return &spinner{sp: sp, limiter: rate.NewLimiter(rate.Every(interval), 1)}, nil
	}
}

type spinner struct {
	sp      *yacspin.Spinner
	limiter *rate.Limiter
}

func (s *spinner) Start() error {
	return s.sp.Start()
}

func (s *spinner) Update(fraction float64) {
	if fraction < 1 && !s.limiter.Allow() {
		return
	}
	s.sp.Message(fmt.Sprintf("%.1f%%", fraction*100))
}

func (s *spinner) Stop(status Status, err error) {
	if status == Done {
		s.sp.StopMessage(status.String())
		_ = s.sp.Stop()

		return
	}

	msg := status.String()
	if err != nil {
		msg += ": " + err.Error()
	}
	s.sp.StopFailMessage(msg)
	_ = s.sp.StopFail()
}
