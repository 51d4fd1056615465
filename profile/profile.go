//
// Copyright (c) 2020-2025 Markku Rossi
//
// All rights reserved.
//

// Package profile records timing samples of protocol phases and
// renders them with the I/O statistics as a report table.
package profile

import (
	"fmt"
	"io"
	"time"

	"github.com/markkurossi/mpcproto/p2p"
	"github.com/markkurossi/tabulate"
)

// FileSize is a byte count rendered with a decimal unit.
type FileSize uint64

func (s FileSize) String() string {
	if s > 1000*1000*1000*1000 {
		return fmt.Sprintf("%dTB", s/(1000*1000*1000*1000))
	} else if s > 1000*1000*1000 {
		return fmt.Sprintf("%dGB", s/(1000*1000*1000))
	} else if s > 1000*1000 {
		return fmt.Sprintf("%dMB", s/(1000*1000))
	} else if s > 1000 {
		return fmt.Sprintf("%dkB", s/1000)
	}
	return fmt.Sprintf("%dB", s)
}

// Timing records consecutive timing samples. Each sample starts where
// the previous one ended.
type Timing struct {
	Start   time.Time
	Samples []*Sample
}

// New creates a new Timing starting from the current time.
func New() *Timing {
	return &Timing{
		Start: time.Now(),
	}
}

// Sample ends the current phase with the label and extra data
// columns.
func (t *Timing) Sample(label string, cols ...string) *Sample {
	start := t.Start
	if len(t.Samples) > 0 {
		start = t.Samples[len(t.Samples)-1].End
	}
	sample := &Sample{
		Label: label,
		Start: start,
		End:   time.Now(),
		Cols:  cols,
	}
	t.Samples = append(t.Samples, sample)
	return sample
}

// Total returns the duration from start to the end of the last
// sample.
func (t *Timing) Total() time.Duration {
	if len(t.Samples) == 0 {
		return 0
	}
	return t.Samples[len(t.Samples)-1].End.Sub(t.Start)
}

func percent(part, total float64) string {
	if total == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", part/total*100)
}

// Table renders the samples and the I/O statistics.
func (t *Timing) Table(stats p2p.IOStats) *tabulate.Tabulate {
	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("Op").SetAlign(tabulate.ML)
	tab.Header("Time").SetAlign(tabulate.MR)
	tab.Header("%").SetAlign(tabulate.MR)
	tab.Header("Xfer").SetAlign(tabulate.MR)

	total := t.Total()
	for _, sample := range t.Samples {
		row := tab.Row()
		row.Column(sample.Label)

		duration := sample.End.Sub(sample.Start)
		row.Column(duration.String())
		row.Column(percent(float64(duration), float64(total)))
		for _, col := range sample.Cols {
			row.Column(col)
		}

		for idx, sub := range sample.Samples {
			row := tab.Row()

			prefix := "├╴"
			if idx+1 >= len(sample.Samples) {
				prefix = "╰╴"
			}
			row.Column(prefix + sub.Label).SetFormat(tabulate.FmtItalic)
			row.Column(sub.Duration.String()).SetFormat(tabulate.FmtItalic)
			row.Column(percent(float64(sub.Duration), float64(duration))).
				SetFormat(tabulate.FmtItalic)
		}
	}

	sent := stats.Sent.Load()
	received := stats.Recvd.Load()
	xfer := float64(sent + received)

	row := tab.Row()
	row.Column("Total").SetFormat(tabulate.FmtBold)
	row.Column(total.String()).SetFormat(tabulate.FmtBold)
	row.Column("").SetFormat(tabulate.FmtBold)
	row.Column(FileSize(sent + received).String()).SetFormat(tabulate.FmtBold)

	row = tab.Row()
	row.Column("├╴Sent").SetFormat(tabulate.FmtItalic)
	row.Column("")
	row.Column(percent(float64(sent), xfer)).SetFormat(tabulate.FmtItalic)
	row.Column(FileSize(sent).String()).SetFormat(tabulate.FmtItalic)

	row = tab.Row()
	row.Column("├╴Rcvd").SetFormat(tabulate.FmtItalic)
	row.Column("")
	row.Column(percent(float64(received), xfer)).SetFormat(tabulate.FmtItalic)
	row.Column(FileSize(received).String()).SetFormat(tabulate.FmtItalic)

	row = tab.Row()
	row.Column("╰╴Flcd").SetFormat(tabulate.FmtItalic)
	row.Column("")
	row.Column("")
	row.Column(fmt.Sprintf("%v", stats.Flushed.Load())).
		SetFormat(tabulate.FmtItalic)

	return tab
}

// Print prints the report to w.
func (t *Timing) Print(w io.Writer, stats p2p.IOStats) {
	if len(t.Samples) == 0 {
		return
	}
	t.Table(stats).Print(w)
}

// Sample contains one timed phase and the durations of its steps.
type Sample struct {
	Label   string
	Start   time.Time
	End     time.Time
	Cols    []string
	Samples []*SubSample
}

// SubSample is a step inside a sample.
type SubSample struct {
	Label    string
	Duration time.Duration
}

// Add adds a step with its duration to the sample.
func (s *Sample) Add(label string, d time.Duration) {
	s.Samples = append(s.Samples, &SubSample{
		Label:    label,
		Duration: d,
	})
}
