// Package journal implements the interactive daily-journal workflow:
// a multi-step conversation driven entirely by button presses and
// reply-to-prompt messages, backed by a single persisted row per day.
//
// The state machine holds no per-user session. Every button token
// carries the day key, every transition is a read-current / compute-next /
// write-back against the row store, and free-text note capture is
// correlated to the notes prompt by the text of the replied-to message.
package journal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/glados-labs/glados/pkg/channel"
)

// Exported correlation and acknowledgment phrases. NotesMarker is the
// reply-correlation phrase; transports can use it to recognize the notes
// prompt among rendered messages.
const (
	NotesMarker   = notesPromptMarker
	NoteSavedText = noteSavedText
	FailureText   = failureText
)

// dayKeyLayout renders a time as the DDMMYYYY day key.
const dayKeyLayout = "02012006"

// DayKey returns the journal day key for a point in time.
func DayKey(t time.Time) string {
	return t.Format(dayKeyLayout)
}

// TokenDayKey extracts the day key from a button token, so callers can
// correlate displayed prompts with the day they belong to.
func TokenDayKey(token string) (string, bool) {
	_, _, dayKey, ok := decodeToken(token)
	return dayKey, ok
}

// Journal is the daily-journal state machine. All entry state lives in
// the row store; the only in-process state is the immutable snapshot of
// reference people, loaded once and replaced only by ReloadPeople.
type Journal struct {
	store Store

	mu     sync.RWMutex
	people []Person
}

// New creates the state machine and loads the reference people snapshot.
func New(ctx context.Context, store Store) (*Journal, error) {
	j := &Journal{store: store}
	if err := j.ReloadPeople(ctx); err != nil {
		return nil, err
	}
	return j, nil
}

// ReloadPeople refreshes the reference people snapshot. The snapshot is
// otherwise immutable for the process lifetime; a restart (or an explicit
// call here) is required to pick up new people.
func (j *Journal) ReloadPeople(ctx context.Context) error {
	people, err := j.store.ListPeople(ctx)
	if err != nil {
		return fmt.Errorf("load people: %w", err)
	}
	j.mu.Lock()
	j.people = people
	j.mu.Unlock()
	return nil
}

// knownPeople returns the current snapshot.
func (j *Journal) knownPeople() []Person {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.people
}

// isKnownPerson reports whether name is in the reference snapshot.
func (j *Journal) isKnownPerson(name string) bool {
	for _, p := range j.knownPeople() {
		if p.Name == name {
			return true
		}
	}
	return false
}

// StartEntry creates (or deterministically re-creates) today's entry and
// returns the initial mood prompt. Starting twice on the same day resets
// the in-progress entry; the day key itself is the idempotency token, so
// no duplicate row can exist.
func (j *Journal) StartEntry(ctx context.Context, now time.Time) (channel.Prompt, error) {
	dayKey := DayKey(now)
	err := j.store.Put(ctx, Entry{
		ID:   dayKey,
		Date: now,
	})
	if err != nil {
		return channel.Prompt{}, err
	}
	return moodPrompt(dayKey), nil
}

// HandleSelection applies a button press. It returns the prompt the
// transport must render by editing the pressed message in place, or nil
// for tokens that are malformed, stale, or otherwise not actionable
// (replayed keyboards are answered with silence, not errors).
//
// Storage failures are returned as-is; they must reach the user rather
// than silently dropping the transition.
func (j *Journal) HandleSelection(ctx context.Context, token string) (*channel.Prompt, error) {
	kind, value, dayKey, ok := decodeToken(token)
	if !ok {
		return nil, nil
	}

	switch kind {
	case kindMood:
		return j.selectMood(ctx, value, dayKey)
	case kindPerson:
		return j.togglePerson(ctx, value, dayKey)
	case kindDonePeople:
		p := notesPrompt(dayKey)
		return &p, nil
	case kindNoNotes:
		p := closingPrompt()
		return &p, nil
	default:
		return nil, nil
	}
}

// selectMood persists the mood and advances to the people step.
func (j *Journal) selectMood(ctx context.Context, value, dayKey string) (*channel.Prompt, error) {
	mood, err := strconv.Atoi(value)
	if err != nil || mood < 1 || mood > 5 {
		// Options are server-generated; an out-of-range value means a
		// stale or forged keyboard, not a user error.
		return nil, nil
	}

	if err := j.store.Update(ctx, dayKey, map[string]any{"mood": mood}); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	p := peoplePrompt(j.knownPeople(), nil, dayKey)
	return &p, nil
}

// togglePerson adds the person to the entry's people set if absent,
// removes them if present. Membership is decided against the freshly
// read persisted set, never a cached one, so repeated or out-of-order
// taps stay linearized through the store.
func (j *Journal) togglePerson(ctx context.Context, name, dayKey string) (*channel.Prompt, error) {
	if !j.isKnownPerson(name) {
		return nil, nil
	}

	entry, err := j.store.Get(ctx, dayKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	people := parsePeople(entry.People)
	updated := make([]string, 0, len(people)+1)
	found := false
	for _, p := range people {
		if p == name {
			found = true
			continue
		}
		updated = append(updated, p)
	}
	if !found {
		updated = append(updated, name)
	}

	if err := j.store.Update(ctx, dayKey, map[string]any{"people": joinPeople(updated)}); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	p := peoplePrompt(j.knownPeople(), updated, dayKey)
	return &p, nil
}

// HandleReply records a free-text note when the message replies to the
// notes prompt. Correlation is by marker phrase in the replied-to text,
// not by session state. Returns handled=false for any reply that is not
// part of the journal flow, leaving it for other routing.
func (j *Journal) HandleReply(ctx context.Context, repliedToText, dayKey, text string) (bool, error) {
	if !containsMarker(repliedToText) {
		return false, nil
	}
	if err := j.store.Update(ctx, dayKey, map[string]any{"notes": text}); err != nil {
		return true, err
	}
	return true, nil
}
