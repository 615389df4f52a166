// Package schedule resolves overlapping cue proposals into disjoint,
// gap-free per-channel render timelines and merges them into a single
// deterministic output.
//
// Each channel runs a small state machine (Idle, Speaking, Gesturing,
// Expressing) driven by a sweep over start-ordered interval events.
// Overlap is resolved by priority, never rejected; gaps are filled with
// idle cues so every channel covers [0, duration] exactly.
package schedule

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/normanking/cueflow/internal/cue"
)

// ErrScheduling indicates an internal invariant violation. Overlaps are
// not errors; a negative-duration proposal or a broken output timeline is.
var ErrScheduling = errors.New("scheduling failed")

// Channel is an independent animation track scheduled separately.
type Channel string

const (
	ChannelFace Channel = "face"
	ChannelBody Channel = "body"
)

// DefaultChannels assigns cue kinds to channels: mouth and facial cues on
// the face track, gestures on the body track.
func DefaultChannels() map[cue.Kind]Channel {
	return map[cue.Kind]Channel{
		cue.KindViseme:     ChannelFace,
		cue.KindExpression: ChannelFace,
		cue.KindGesture:    ChannelBody,
	}
}

// DefaultIdlePoses names the default pose asset per channel.
func DefaultIdlePoses() map[Channel]string {
	return map[Channel]string{
		ChannelFace: "idle/face",
		ChannelBody: "idle/body",
	}
}

// ScheduledCue is a cue with its resolved channel assignment.
type ScheduledCue struct {
	cue.Cue
	Channel Channel `json:"channel"`
}

// Timeline is the merged scheduler output: per channel the cues are
// disjoint, strictly ordered by start, and cover [0, Duration] without
// gaps. At equal start times face cues precede body cues.
type Timeline struct {
	Cues     []ScheduledCue `json:"cues"`
	Duration float64        `json:"duration"`
}

// ChannelCues returns the timeline entries for one channel, in order.
func (t *Timeline) ChannelCues(ch Channel) []ScheduledCue {
	out := make([]ScheduledCue, 0, len(t.Cues))
	for _, c := range t.Cues {
		if c.Channel == ch {
			out = append(out, c)
		}
	}
	return out
}

// channel state machine states.
type state int

const (
	stateIdle state = iota
	stateSpeaking
	stateGesturing
	stateExpressing
)

func stateFor(kind cue.Kind) state {
	switch kind {
	case cue.KindViseme:
		return stateSpeaking
	case cue.KindGesture:
		return stateGesturing
	case cue.KindExpression:
		return stateExpressing
	default:
		return stateIdle
	}
}

// legalTransition reports whether a channel may move from one state to
// the next at a cue boundary. Active states may follow each other or
// idle freely since cue boundaries are end-aligned by construction, but
// idle never follows idle: gap fill must coalesce adjacent idle spans.
func legalTransition(from, to state) bool {
	return from != stateIdle || to != stateIdle
}

// Scheduler resolves cue proposals into render timelines.
type Scheduler struct {
	channels  map[cue.Kind]Channel
	idlePoses map[Channel]string
	logger    zerolog.Logger
}

// NewScheduler creates a Scheduler. Nil maps fall back to defaults.
func NewScheduler(channels map[cue.Kind]Channel, idlePoses map[Channel]string, logger zerolog.Logger) *Scheduler {
	if channels == nil {
		channels = DefaultChannels()
	}
	if idlePoses == nil {
		idlePoses = DefaultIdlePoses()
	}
	return &Scheduler{
		channels:  channels,
		idlePoses: idlePoses,
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}
}

// Schedule resolves proposals into the merged render timeline for the
// given audio duration.
func (s *Scheduler) Schedule(proposals []cue.Cue, duration float64) (*Timeline, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("%w: non-positive duration %.3fs", ErrScheduling, duration)
	}

	byChannel := make(map[Channel][]cue.Cue)
	for _, c := range proposals {
		ch, ok := s.channels[c.Kind]
		if !ok {
			ch = ChannelBody
		}
		byChannel[ch] = append(byChannel[ch], c)
	}

	// Every known channel is scheduled even with no proposals, so each
	// one carries at least a full-length idle cue.
	channelSet := map[Channel]struct{}{}
	for _, ch := range s.channels {
		channelSet[ch] = struct{}{}
	}
	ordered := orderedChannels(channelSet)

	perChannel := make(map[Channel][]ScheduledCue, len(ordered))
	for _, ch := range ordered {
		scheduled, err := s.scheduleChannel(ch, byChannel[ch], duration)
		if err != nil {
			return nil, err
		}
		perChannel[ch] = scheduled
	}

	merged := mergeChannels(ordered, perChannel)
	tl := &Timeline{Cues: merged, Duration: duration}

	if err := s.verify(tl, ordered); err != nil {
		return nil, err
	}

	s.logger.Debug().Int("proposals", len(proposals)).Int("scheduled", len(merged)).Float64("duration", duration).Msg("Scheduling complete")
	return tl, nil
}

// scheduleChannel runs the per-channel sweep: proposals sorted by start
// (planner order breaking ties) are admitted one by one. A higher-priority
// cue starting strictly inside an active lower-priority cue truncates it;
// a lower-priority cue is deferred past the active cue's end and rejoins
// the sweep at its new start. Idle cues then fill every gap.
func (s *Scheduler) scheduleChannel(ch Channel, proposals []cue.Cue, duration float64) ([]ScheduledCue, error) {
	queue := make([]cue.Cue, len(proposals))
	copy(queue, proposals)
	sort.SliceStable(queue, func(a, b int) bool {
		if queue[a].Start != queue[b].Start {
			return queue[a].Start < queue[b].Start
		}
		return queue[a].Order < queue[b].Order
	})

	admitted := make([]cue.Cue, 0, len(proposals))
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]

		if c.End < c.Start {
			return nil, fmt.Errorf("%w: negative duration cue %s [%.3f,%.3f)", ErrScheduling, c.Payload, c.Start, c.End)
		}
		if c.End > duration {
			c.End = duration
		}
		if c.Start >= duration || c.End <= c.Start {
			continue
		}

		admit := true
		if len(admitted) > 0 {
			last := &admitted[len(admitted)-1]
			switch {
			case c.Start >= last.End:
				// No conflict.
			case c.Start == last.Start && c.Priority == last.Priority:
				// Same start, same priority: earlier planner order wins.
				admit = false
			case c.Priority > last.Priority && c.Start > last.Start:
				// Truncate the active lower-priority cue at our start.
				last.End = c.Start
			case c.Priority > last.Priority:
				// Equal start: displace the active cue and defer its
				// remainder past our end.
				displaced := *last
				admitted = admitted[:len(admitted)-1]
				displaced.Start = c.End
				if displaced.Start < displaced.End {
					queue = insertSorted(queue, displaced)
				}
			default:
				// Lower priority: defer until the active cue ends.
				c.Start = last.End
				if c.Start < c.End {
					queue = insertSorted(queue, c)
				}
				admit = false
			}
		}
		if admit {
			admitted = append(admitted, c)
		}
	}

	return s.fillIdle(ch, admitted, duration), nil
}

// insertSorted places a deferred cue back into the pending queue at its
// (start, order) position so the sweep stays time-ordered.
func insertSorted(queue []cue.Cue, c cue.Cue) []cue.Cue {
	i := sort.Search(len(queue), func(i int) bool {
		if queue[i].Start != c.Start {
			return queue[i].Start > c.Start
		}
		return queue[i].Order > c.Order
	})
	queue = append(queue, cue.Cue{})
	copy(queue[i+1:], queue[i:])
	queue[i] = c
	return queue
}

// fillIdle inserts idle cues so the channel covers [0, duration] exactly.
func (s *Scheduler) fillIdle(ch Channel, admitted []cue.Cue, duration float64) []ScheduledCue {
	pose := s.idlePoses[ch]
	out := make([]ScheduledCue, 0, len(admitted)*2+1)
	cursor := 0.0

	idle := func(start, end float64) ScheduledCue {
		return ScheduledCue{
			Cue:     cue.Cue{Kind: cue.KindIdle, Payload: pose, Start: start, End: end},
			Channel: ch,
		}
	}

	for _, c := range admitted {
		if c.Start > cursor {
			out = append(out, idle(cursor, c.Start))
		}
		out = append(out, ScheduledCue{Cue: c, Channel: ch})
		cursor = c.End
	}
	if cursor < duration {
		out = append(out, idle(cursor, duration))
	}
	return out
}

// verify asserts the output invariants: per channel full coverage with
// exact adjacency, and only legal state transitions.
func (s *Scheduler) verify(tl *Timeline, channels []Channel) error {
	for _, ch := range channels {
		cues := tl.ChannelCues(ch)
		if len(cues) == 0 {
			return fmt.Errorf("%w: channel %s has no coverage", ErrScheduling, ch)
		}
		if cues[0].Start != 0 {
			return fmt.Errorf("%w: channel %s starts at %.3f", ErrScheduling, ch, cues[0].Start)
		}
		if last := cues[len(cues)-1].End; last != tl.Duration {
			return fmt.Errorf("%w: channel %s ends at %.3f, want %.3f", ErrScheduling, ch, last, tl.Duration)
		}
		for i := 1; i < len(cues); i++ {
			if cues[i].Start != cues[i-1].End {
				return fmt.Errorf("%w: channel %s gap between %.3f and %.3f", ErrScheduling, ch, cues[i-1].End, cues[i].Start)
			}
			if !legalTransition(stateFor(cues[i-1].Kind), stateFor(cues[i].Kind)) {
				return fmt.Errorf("%w: channel %s illegal transition %s -> %s", ErrScheduling, ch, cues[i-1].Kind, cues[i].Kind)
			}
		}
	}
	return nil
}

// mergeChannels interleaves per-channel timelines by start time,
// preserving per-channel order; the channel ordering (face first) breaks
// equal-start ties.
func mergeChannels(ordered []Channel, perChannel map[Channel][]ScheduledCue) []ScheduledCue {
	total := 0
	idx := make(map[Channel]int, len(ordered))
	for _, ch := range ordered {
		total += len(perChannel[ch])
	}

	out := make([]ScheduledCue, 0, total)
	for len(out) < total {
		var best Channel
		found := false
		for _, ch := range ordered {
			i := idx[ch]
			if i >= len(perChannel[ch]) {
				continue
			}
			if !found || perChannel[ch][i].Start < perChannel[best][idx[best]].Start {
				best = ch
				found = true
			}
		}
		out = append(out, perChannel[best][idx[best]])
		idx[best]++
	}
	return out
}

// orderedChannels returns channels in deterministic emission order:
// face first, then body, then anything else alphabetically.
func orderedChannels(set map[Channel]struct{}) []Channel {
	rank := func(ch Channel) int {
		switch ch {
		case ChannelFace:
			return 0
		case ChannelBody:
			return 1
		default:
			return 2
		}
	}
	out := make([]Channel, 0, len(set))
	for ch := range set {
		out = append(out, ch)
	}
	sort.Slice(out, func(a, b int) bool {
		if rank(out[a]) != rank(out[b]) {
			return rank(out[a]) < rank(out[b])
		}
		return out[a] < out[b]
	})
	return out
}
