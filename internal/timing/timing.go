// Package timing derives time-stamped word and phoneme marks from
// synthesized audio. Backends that report their own timings are validated
// and passed through; everything else goes through a heuristic aligner
// that distributes word marks across the audio duration.
package timing

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
)

// ErrAlignment indicates the input cannot be aligned: no speakable words
// or a non-positive audio duration.
var ErrAlignment = errors.New("alignment failed")

// Epsilon is the tolerance allowed past the audio duration for the last
// mark's end, to absorb encoder rounding.
const Epsilon = 0.005

// Kind distinguishes word-level from phoneme-level marks.
type Kind string

const (
	KindWord    Kind = "word"
	KindPhoneme Kind = "phoneme"
)

// Mark is a single timed text unit. Sequences of marks are ordered,
// non-overlapping and non-decreasing in start time.
type Mark struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Kind  Kind    `json:"kind"`
}

// Duration returns the mark's span in seconds.
func (m Mark) Duration() float64 {
	return m.End - m.Start
}

// LanguageTiming holds per-language alignment weights for the heuristic
// aligner. PerCharDuration approximates the average spoken duration of a
// single character; WordGap approximates the pause between words.
type LanguageTiming struct {
	PerCharDuration float64 `mapstructure:"per_char_duration"`
	WordGap         float64 `mapstructure:"word_gap"`
}

// DefaultLanguageTimings returns the built-in alignment weights.
// Rates roughly follow natural speaking speed per language.
func DefaultLanguageTimings() map[string]LanguageTiming {
	return map[string]LanguageTiming{
		"en": {PerCharDuration: 0.075, WordGap: 0.08},
		"hi": {PerCharDuration: 0.095, WordGap: 0.10},
	}
}

// Extractor produces mark sequences for audio tracks.
type Extractor struct {
	languages map[string]LanguageTiming
	logger    zerolog.Logger
}

// NewExtractor creates an Extractor. A nil languages map falls back to
// the built-in defaults.
func NewExtractor(languages map[string]LanguageTiming, logger zerolog.Logger) *Extractor {
	if languages == nil {
		languages = DefaultLanguageTimings()
	}
	return &Extractor{
		languages: languages,
		logger:    logger.With().Str("component", "timing").Logger(),
	}
}

// Extract returns an ordered mark sequence for the given text and audio
// duration. A consistent backend hint is returned as-is; an inconsistent
// one is discarded with a warning and the heuristic aligner takes over.
// Extract is pure: identical inputs yield identical output.
func (e *Extractor) Extract(duration float64, text, language string, hint []Mark) ([]Mark, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("%w: audio duration %.3fs", ErrAlignment, duration)
	}

	if len(hint) > 0 {
		err := Validate(hint, duration)
		if err == nil {
			out := make([]Mark, len(hint))
			copy(out, hint)
			return out, nil
		}
		e.logger.Warn().Err(err).Int("marks", len(hint)).Msg("Backend timings inconsistent, falling back to heuristic aligner")
	}

	return e.align(duration, text, language)
}

// Validate checks a mark sequence for internal consistency against the
// audio duration: ordered, non-overlapping, positive spans, and ending
// within duration plus tolerance.
func Validate(marks []Mark, duration float64) error {
	if len(marks) == 0 {
		return fmt.Errorf("%w: empty mark sequence", ErrAlignment)
	}
	prevEnd := 0.0
	prevStart := -1.0
	for i, m := range marks {
		if m.Start < 0 || m.End <= m.Start {
			return fmt.Errorf("%w: mark %d has invalid interval [%.3f,%.3f)", ErrAlignment, i, m.Start, m.End)
		}
		if m.Start < prevStart {
			return fmt.Errorf("%w: mark %d starts before mark %d", ErrAlignment, i, i-1)
		}
		if m.Start < prevEnd {
			return fmt.Errorf("%w: mark %d overlaps mark %d", ErrAlignment, i, i-1)
		}
		prevStart = m.Start
		prevEnd = m.End
	}
	if last := marks[len(marks)-1].End; last > duration+Epsilon {
		return fmt.Errorf("%w: marks end at %.3fs beyond audio duration %.3fs", ErrAlignment, last, duration)
	}
	return nil
}

// align distributes word marks proportionally across the duration,
// weighted by character count and the language's timing profile.
func (e *Extractor) align(duration float64, text, language string) ([]Mark, error) {
	words := SplitWords(text)
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: text has no speakable words", ErrAlignment)
	}

	lt, ok := e.languages[language]
	if !ok {
		lt = e.languages["en"]
	}
	// A non-positive rate would collapse the layout into NaN marks;
	// treat such an entry as absent.
	if lt.PerCharDuration <= 0 {
		lt = DefaultLanguageTimings()["en"]
	}
	if lt.WordGap < 0 {
		lt.WordGap = 0
	}

	// Ideal (unscaled) layout: each word spans chars*perChar, with a
	// fixed gap between words. The whole layout is then scaled so the
	// last word ends exactly at the audio duration.
	total := 0.0
	spans := make([]float64, len(words))
	for i, w := range words {
		spans[i] = float64(len([]rune(w))) * lt.PerCharDuration
		total += spans[i]
	}
	total += float64(len(words)-1) * lt.WordGap

	scale := duration / total
	marks := make([]Mark, 0, len(words))
	cursor := 0.0
	for i, w := range words {
		end := cursor + spans[i]*scale
		if i == len(words)-1 {
			end = duration
		}
		marks = append(marks, Mark{Text: w, Start: cursor, End: end, Kind: KindWord})
		cursor = end + lt.WordGap*scale
	}

	e.logger.Debug().
		Int("words", len(words)).
		Float64("duration", duration).
		Str("language", language).
		Msg("Heuristic alignment complete")

	return marks, nil
}

// SplitWords extracts speakable words from text, dropping punctuation.
func SplitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
