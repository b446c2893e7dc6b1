package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkOutbreak         BookmarkType = "outbreak"
	BookmarkPreyCrash        BookmarkType = "prey_crash"
	BookmarkPredatorRecovery BookmarkType = "predator_recovery"
	BookmarkExtinction       BookmarkType = "extinction"
	BookmarkStablePopulation BookmarkType = "stable_population"
)

// Bookmark marks a notable day in a trajectory.
type Bookmark struct {
	Type        BookmarkType `csv:"type" json:"type"`
	Day         int          `csv:"day" json:"day"`
	Description string       `csv:"description" json:"description"`
}

// Log logs the bookmark at info level.
func (b Bookmark) Log(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("bookmark",
		"type", string(b.Type),
		"day", b.Day,
		"description", b.Description,
	)
}

// Census is one day's head count fed to the detector. Predators is zero for
// single-species runs.
type Census struct {
	Day       int
	Prey      int
	Predators int
}

// BookmarkDetector detects notable days in a daily census stream.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []Census
	historySize int
	historyIdx  int
	historyFull bool

	recentPredMin    int // minimum predator count since last recovery
	recentPreyPeak   int // peak prey count since last crash
	stableDays       int // consecutive low-variance days
	sawPrey          bool
	sawPredators     bool
	extinctionMarked bool
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5 // minimum for stability detection
	}
	return &BookmarkDetector{
		history:       make([]Census, historySize),
		historySize:   historySize,
		recentPredMin: -1,
	}
}

// Check analyzes the latest census and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(c Census) []Bookmark {
	var bookmarks []Bookmark

	if c.Predators > 0 {
		bd.sawPredators = true
	}
	if c.Prey > 0 {
		bd.sawPrey = true
	}

	if bd.historyFull || bd.historyIdx > 0 {
		if b := bd.checkOutbreak(c); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkPreyCrash(c); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkPredatorRecovery(c); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkExtinction(c); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkStable(c); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	bd.addToHistory(c)

	if bd.sawPredators && (bd.recentPredMin < 0 || c.Predators < bd.recentPredMin) {
		bd.recentPredMin = c.Predators
	}
	if c.Prey > bd.recentPreyPeak {
		bd.recentPreyPeak = c.Prey
	}

	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(c Census) {
	bd.history[bd.historyIdx] = c
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []Census {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

func (bd *BookmarkDetector) checkOutbreak(c Census) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total float64
	for _, h := range history {
		total += float64(h.Prey)
	}
	avg := total / float64(len(history))
	if avg == 0 {
		return nil
	}

	if float64(c.Prey) > avg*2.0 && c.Prey >= 100 {
		return &Bookmark{
			Type:        BookmarkOutbreak,
			Day:         c.Day,
			Description: fmt.Sprintf("Population %d is %.1fx rolling average (%.0f)", c.Prey, float64(c.Prey)/avg, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkPreyCrash(c Census) *Bookmark {
	if bd.recentPreyPeak == 0 {
		return nil
	}

	drop := 1.0 - float64(c.Prey)/float64(bd.recentPreyPeak)
	if drop > 0.30 && c.Prey < bd.recentPreyPeak-10 {
		oldPeak := bd.recentPreyPeak
		bd.recentPreyPeak = c.Prey

		return &Bookmark{
			Type:        BookmarkPreyCrash,
			Day:         c.Day,
			Description: fmt.Sprintf("Population crashed %.0f%% from peak %d to %d", drop*100, oldPeak, c.Prey),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkPredatorRecovery(c Census) *Bookmark {
	if bd.recentPredMin < 0 || bd.recentPredMin > 3 {
		return nil
	}

	threshold := max(bd.recentPredMin*3, 6)
	if c.Predators >= threshold {
		oldMin := bd.recentPredMin
		bd.recentPredMin = c.Predators

		return &Bookmark{
			Type:        BookmarkPredatorRecovery,
			Day:         c.Day,
			Description: fmt.Sprintf("Predator population recovered from %d to %d", oldMin, c.Predators),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkExtinction(c Census) *Bookmark {
	if bd.extinctionMarked || c.Prey > 0 || !bd.sawPrey {
		return nil
	}
	bd.extinctionMarked = true
	return &Bookmark{
		Type:        BookmarkExtinction,
		Day:         c.Day,
		Description: "Population went extinct",
	}
}

func (bd *BookmarkDetector) checkStable(c Census) *Bookmark {
	if c.Prey < 10 || (bd.sawPredators && c.Predators < 3) {
		bd.stableDays = 0
		return nil
	}

	history := bd.getHistory()
	if len(history) < 4 {
		return nil
	}

	prey := make([]float64, 0, len(history))
	pred := make([]float64, 0, len(history))
	for _, h := range history {
		prey = append(prey, float64(h.Prey))
		pred = append(pred, float64(h.Predators))
	}

	preyCV := CoefficientOfVariation(prey, 1)
	predCV := 0.0
	if bd.sawPredators {
		predCV = CoefficientOfVariation(pred, 1)
	}

	if preyCV < 0.2 && predCV < 0.2 {
		bd.stableDays++
	} else {
		bd.stableDays = 0
	}

	if bd.stableDays == 5 { // trigger exactly once per stable stretch
		return &Bookmark{
			Type:        BookmarkStablePopulation,
			Day:         c.Day,
			Description: fmt.Sprintf("Stable at %d prey, %d predators for 5+ days", c.Prey, c.Predators),
		}
	}
	return nil
}
