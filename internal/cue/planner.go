package cue

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/normanking/cueflow/internal/timing"
)

// Profile holds the configuration-driven planning tables: emotion
// keywords, gesture triggers and cue timing bounds.
type Profile struct {
	// EmotionKeywords maps a lowercased keyword to an expression asset id.
	EmotionKeywords map[string]string
	// GestureTriggers maps a lowercased keyword to a gesture asset id.
	GestureTriggers map[string]string
	// Priorities orders cue kinds for downstream conflict resolution.
	Priorities map[Kind]int

	GestureDuration float64 // preferred gesture length before clamping
	GestureMin      float64 // lower bound on gesture duration
	GestureMax      float64 // upper bound on gesture duration
	ExpressionPad   float64 // pad added on both sides of an expression span
}

// DefaultProfile returns the built-in planning tables. Keyword sets
// follow the emotion and trigger vocabularies of the animation content
// pipeline; all of it is overridable through configuration.
func DefaultProfile() *Profile {
	return &Profile{
		EmotionKeywords: map[string]string{
			"happy": "expression/happy", "joy": "expression/happy", "excited": "expression/happy",
			"cheerful": "expression/happy", "delighted": "expression/happy", "pleased": "expression/happy",
			"great": "expression/happy", "wonderful": "expression/happy",
			"sad": "expression/sad", "unhappy": "expression/sad", "sorrow": "expression/sad",
			"grief": "expression/sad", "melancholy": "expression/sad",
			"angry": "expression/angry", "furious": "expression/angry", "mad": "expression/angry",
			"annoyed": "expression/angry", "frustrated": "expression/angry",
			"surprised": "expression/surprised", "amazed": "expression/surprised",
			"shocked": "expression/surprised", "astonished": "expression/surprised",
			"afraid": "expression/fear", "scared": "expression/fear", "terrified": "expression/fear",
			"worried": "expression/fear", "anxious": "expression/fear", "nervous": "expression/fear",
		},
		GestureTriggers: map[string]string{
			"this": "gesture/pointing", "that": "gesture/pointing", "here": "gesture/pointing",
			"there": "gesture/pointing", "look": "gesture/pointing", "see": "gesture/pointing",
			"important": "gesture/emphasis", "remember": "gesture/emphasis", "listen": "gesture/emphasis",
			"attention": "gesture/emphasis", "focus": "gesture/emphasis",
			"what": "gesture/questioning", "how": "gesture/questioning", "why": "gesture/questioning",
			"when": "gesture/questioning", "where": "gesture/questioning", "who": "gesture/questioning",
			"because": "gesture/explaining", "therefore": "gesture/explaining", "thus": "gesture/explaining",
			"hello": "gesture/greeting", "hi": "gesture/greeting", "welcome": "gesture/greeting",
			"think": "gesture/thinking", "consider": "gesture/thinking", "hmm": "gesture/thinking",
		},
		Priorities:      DefaultPriorities(),
		GestureDuration: 0.35,
		GestureMin:      0.3,
		GestureMax:      1.2,
		ExpressionPad:   0.2,
	}
}

// Planner turns timing marks plus utterance text into cue proposals.
type Planner struct {
	profile *Profile
	logger  zerolog.Logger
}

// NewPlanner creates a Planner. A nil profile falls back to defaults.
func NewPlanner(profile *Profile, logger zerolog.Logger) *Planner {
	if profile == nil {
		profile = DefaultProfile()
	}
	return &Planner{
		profile: profile,
		logger:  logger.With().Str("component", "planner").Logger(),
	}
}

// Plan emits cue proposals for the given marks and text. Proposals of
// different kinds may overlap; proposals within one kind never do.
func (p *Planner) Plan(marks []timing.Mark, text string, duration float64) ([]Cue, error) {
	if len(marks) == 0 {
		return nil, fmt.Errorf("%w: no timing marks", ErrPlanning)
	}

	var cues []Cue
	cues = p.planVisemes(cues, marks, duration)
	cues = p.planGestures(cues, marks, text, duration)
	cues = p.planExpressions(cues, marks, text, duration)

	cues = p.resolveSameKind(cues)

	for i := range cues {
		cues[i].Priority = p.profile.Priorities[cues[i].Kind]
		cues[i].Order = i
	}

	p.logger.Debug().Int("cues", len(cues)).Float64("duration", duration).Msg("Cue planning complete")
	return cues, nil
}

// planVisemes emits one viseme per phoneme mark, or a derived viseme
// sequence distributed evenly across each word mark.
func (p *Planner) planVisemes(cues []Cue, marks []timing.Mark, duration float64) []Cue {
	for _, m := range marks {
		start, end := clampSpan(m.Start, m.End, duration)
		if end <= start {
			continue
		}

		if m.Kind == timing.KindPhoneme {
			cues = append(cues, Cue{Kind: KindViseme, Payload: VisemeForPhoneme(m.Text), Start: start, End: end})
			continue
		}

		seq := VisemeSequence(m.Text)
		if len(seq) == 0 {
			continue
		}
		step := (end - start) / float64(len(seq))
		for i, v := range seq {
			vEnd := start + float64(i+1)*step
			if i == len(seq)-1 {
				vEnd = end
			}
			cues = append(cues, Cue{Kind: KindViseme, Payload: v, Start: start + float64(i)*step, End: vEnd})
		}
	}
	return cues
}

// planGestures emits one gesture per sentence boundary, anchored in the
// pause between sentences and clipped to the audio duration.
func (p *Planner) planGestures(cues []Cue, marks []timing.Mark, text string, duration float64) []Cue {
	wordMarks := filterKind(marks, timing.KindWord)

	wordIdx := 0
	for _, s := range splitSentences(text) {
		wordIdx += len(s.words)

		anchor := duration
		if len(wordMarks) >= wordIdx && wordIdx > 0 {
			prevEnd := wordMarks[wordIdx-1].End
			nextStart := duration
			if wordIdx < len(wordMarks) {
				nextStart = wordMarks[wordIdx].Start
			}
			anchor = (prevEnd + nextStart) / 2
		} else if n := totalWords(text); n > 0 {
			// Phoneme-only timings: anchor proportionally by word count.
			anchor = duration * float64(wordIdx) / float64(n)
		}

		span := p.profile.GestureDuration
		if span < p.profile.GestureMin {
			span = p.profile.GestureMin
		}
		if span > p.profile.GestureMax {
			span = p.profile.GestureMax
		}

		start, end := clampSpan(anchor, anchor+span, duration)
		if end <= start {
			continue
		}
		cues = append(cues, Cue{Kind: KindGesture, Payload: p.gestureFor(s), Start: start, End: end})
	}
	return cues
}

// planExpressions emits one expression per emotion keyword occurrence,
// covering the keyword's span padded on both sides.
func (p *Planner) planExpressions(cues []Cue, marks []timing.Mark, text string, duration float64) []Cue {
	wordMarks := filterKind(marks, timing.KindWord)
	words := timing.SplitWords(text)
	pad := p.profile.ExpressionPad

	for i, w := range words {
		expr, ok := p.profile.EmotionKeywords[strings.ToLower(w)]
		if !ok {
			continue
		}

		// Anchor on the mark only when its text is the same word; a
		// backend whose tokenization disagrees with SplitWords would
		// otherwise shift every expression onto the wrong span.
		spanStart := duration * float64(i) / float64(len(words))
		spanEnd := duration * float64(i+1) / float64(len(words))
		if i < len(wordMarks) && sameWord(wordMarks[i].Text, w) {
			spanStart, spanEnd = wordMarks[i].Start, wordMarks[i].End
		}

		start, end := clampSpan(spanStart-pad, spanEnd+pad, duration)
		if end <= start {
			continue
		}
		cues = append(cues, Cue{Kind: KindExpression, Payload: expr, Start: start, End: end})
	}
	return cues
}

// sameWord reports whether a timing mark's text is the given word,
// ignoring case and surrounding punctuation.
func sameWord(markText, word string) bool {
	ws := timing.SplitWords(markText)
	return len(ws) == 1 && strings.EqualFold(ws[0], word)
}

// gestureFor picks a gesture id for a sentence: trigger keyword first,
// then the terminator punctuation, then a neutral beat.
func (p *Planner) gestureFor(s sentence) string {
	for _, w := range s.words {
		if g, ok := p.profile.GestureTriggers[strings.ToLower(w)]; ok {
			return g
		}
	}
	switch s.terminator {
	case '?':
		return "gesture/questioning"
	case '!':
		return "gesture/emphasis"
	}
	return "gesture/beat"
}

// resolveSameKind truncates the later cue when two proposals of the same
// kind overlap, dropping it entirely if nothing remains.
func (p *Planner) resolveSameKind(cues []Cue) []Cue {
	byKind := make(map[Kind][]int)
	for i, c := range cues {
		byKind[c.Kind] = append(byKind[c.Kind], i)
	}

	keep := make([]bool, len(cues))
	for i := range keep {
		keep[i] = true
	}

	for _, idxs := range byKind {
		sort.SliceStable(idxs, func(a, b int) bool {
			return cues[idxs[a]].Start < cues[idxs[b]].Start
		})
		prevEnd := -1.0
		for _, i := range idxs {
			if cues[i].Start < prevEnd {
				cues[i].Start = prevEnd
				if cues[i].End <= cues[i].Start {
					keep[i] = false
					continue
				}
			}
			prevEnd = cues[i].End
		}
	}

	out := cues[:0]
	for i, c := range cues {
		if keep[i] {
			out = append(out, c)
		}
	}
	return out
}

type sentence struct {
	words      []string
	terminator byte
}

// splitSentences segments text on terminal punctuation runs.
func splitSentences(text string) []sentence {
	var out []sentence
	var current []byte
	var terminator byte

	flush := func() {
		words := timing.SplitWords(string(current))
		if len(words) > 0 {
			out = append(out, sentence{words: words, terminator: terminator})
		}
		current = current[:0]
		terminator = 0
	}

	inTerminator := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch ch {
		case '.', '!', '?':
			if !inTerminator {
				terminator = ch
				inTerminator = true
			}
		default:
			if inTerminator {
				flush()
				inTerminator = false
			}
			current = append(current, ch)
		}
	}
	flush()
	return out
}

func totalWords(text string) int {
	return len(timing.SplitWords(text))
}

func filterKind(marks []timing.Mark, kind timing.Kind) []timing.Mark {
	out := make([]timing.Mark, 0, len(marks))
	for _, m := range marks {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func clampSpan(start, end, duration float64) (float64, float64) {
	if start < 0 {
		start = 0
	}
	if end > duration {
		end = duration
	}
	return start, end
}
