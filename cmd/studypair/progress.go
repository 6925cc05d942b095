package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"

	"studypair/internal/joblog"
	"studypair/internal/logging"
	"studypair/internal/matching"
)

// dispatchProgress renders admitted pairs as a console progress bar.
type dispatchProgress struct {
	writer io.Writer
	logger *slog.Logger
	bar    *progressbar.ProgressBar
}

func newDispatchProgress(w io.Writer, logger *slog.Logger) *dispatchProgress {
	return &dispatchProgress{writer: w, logger: logger}
}

// Planned sizes the bar once the pair count is known.
func (p *dispatchProgress) Planned(pairs []matching.Pair) {
	if len(pairs) == 0 {
		return
	}
	p.bar = progressbar.NewOptions(len(pairs),
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Dispatching pairs...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(p.writer)
		}),
	)
}

// Decided advances the bar by one pair.
func (p *dispatchProgress) Decided(_ int, pair matching.Pair, status joblog.Status) {
	if p.bar == nil {
		return
	}
	if status == joblog.StatusError {
		p.bar.Describe("[red]Dispatch failed[reset]")
		return
	}
	if err := p.bar.Add(1); err != nil {
		p.logger.Debug("progress bar update failed",
			logging.String(logging.FieldStudyUID, pair.StudyUID),
			logging.Error(err),
		)
	}
}
