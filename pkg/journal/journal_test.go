package journal

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeStore is an in-memory Store for exercising the state machine.
type fakeStore struct {
	entries map[string]Entry
	people  []Person
	failOp  string // operation name that should fail, "" = none
}

func newFakeStore(people ...string) *fakeStore {
	fs := &fakeStore{entries: make(map[string]Entry)}
	for i, name := range people {
		fs.people = append(fs.people, Person{ID: i + 1, Name: name})
	}
	return fs
}

func (fs *fakeStore) fail(op string) error {
	if fs.failOp == op {
		return &StorageError{Op: op, Err: errors.New("connection refused")}
	}
	return nil
}

func (fs *fakeStore) Get(ctx context.Context, dayKey string) (*Entry, error) {
	if err := fs.fail("get"); err != nil {
		return nil, err
	}
	e, ok := fs.entries[dayKey]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (fs *fakeStore) Put(ctx context.Context, e Entry) error {
	if err := fs.fail("put"); err != nil {
		return err
	}
	fs.entries[e.ID] = e
	return nil
}

func (fs *fakeStore) Update(ctx context.Context, dayKey string, fields map[string]any) error {
	if err := fs.fail("update"); err != nil {
		return err
	}
	e, ok := fs.entries[dayKey]
	if !ok {
		return ErrNotFound
	}
	for col, v := range fields {
		switch col {
		case "mood":
			e.Mood = v.(int)
		case "people":
			e.People = v.(string)
		case "notes":
			e.Notes = v.(string)
		default:
			return &StorageError{Op: "update", Err: fmt.Errorf("column %q is not updatable", col)}
		}
	}
	fs.entries[dayKey] = e
	return nil
}

func (fs *fakeStore) ListPeople(ctx context.Context) ([]Person, error) {
	if err := fs.fail("list_people"); err != nil {
		return nil, err
	}
	return fs.people, nil
}

var testDay = time.Date(2025, time.August, 17, 18, 30, 0, 0, time.UTC)

func newTestJournal(t *testing.T, fs *fakeStore) *Journal {
	t.Helper()
	j, err := New(context.Background(), fs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return j
}

func TestDayKey(t *testing.T) {
	if got := DayKey(testDay); got != "17082025" {
		t.Errorf("DayKey = %q, want %q", got, "17082025")
	}
}

func TestStartEntry(t *testing.T) {
	fs := newFakeStore("alice", "bob")
	j := newTestJournal(t, fs)

	prompt, err := j.StartEntry(context.Background(), testDay)
	if err != nil {
		t.Fatalf("StartEntry: %v", err)
	}

	e, ok := fs.entries["17082025"]
	if !ok {
		t.Fatal("no entry created for 17082025")
	}
	if e.Mood != 0 || e.People != "" || e.Notes != "" {
		t.Errorf("fresh entry not zeroed: %+v", e)
	}

	if prompt.Text != "How are you feeling today?" {
		t.Errorf("prompt text = %q", prompt.Text)
	}
	if len(prompt.Buttons) != 1 || len(prompt.Buttons[0]) != 5 {
		t.Fatalf("expected one row of 5 mood buttons, got %v", prompt.Buttons)
	}
	if tok := prompt.Buttons[0][3].Token; tok != "mood;4;17082025" {
		t.Errorf("fourth mood token = %q", tok)
	}
}

func TestStartEntryResetsSameDay(t *testing.T) {
	fs := newFakeStore("alice")
	j := newTestJournal(t, fs)
	ctx := context.Background()

	if _, err := j.StartEntry(ctx, testDay); err != nil {
		t.Fatalf("StartEntry: %v", err)
	}
	if _, err := j.HandleSelection(ctx, "mood;3;17082025"); err != nil {
		t.Fatalf("HandleSelection: %v", err)
	}

	// Re-issuing the start command resets the in-progress entry but must
	// not create a second row.
	if _, err := j.StartEntry(ctx, testDay); err != nil {
		t.Fatalf("second StartEntry: %v", err)
	}
	if len(fs.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(fs.entries))
	}
	if e := fs.entries["17082025"]; e.Mood != 0 {
		t.Errorf("mood not reset, got %d", e.Mood)
	}
}

func TestMoodSelection(t *testing.T) {
	for v := 1; v <= 5; v++ {
		fs := newFakeStore("alice", "bob")
		j := newTestJournal(t, fs)
		ctx := context.Background()

		if _, err := j.StartEntry(ctx, testDay); err != nil {
			t.Fatalf("StartEntry: %v", err)
		}
		prompt, err := j.HandleSelection(ctx, fmt.Sprintf("mood;%d;17082025", v))
		if err != nil {
			t.Fatalf("HandleSelection(mood=%d): %v", v, err)
		}
		if got := fs.entries["17082025"].Mood; got != v {
			t.Errorf("mood = %d, want %d", got, v)
		}
		if prompt == nil || prompt.Text != "Who were you with?" {
			t.Fatalf("expected people prompt after mood, got %v", prompt)
		}
		// One button per known person plus the trailing Done row.
		if n := len(prompt.Buttons); n != 2 {
			t.Errorf("expected 2 button rows, got %d", n)
		}
	}
}

func TestMoodOutOfRangeIsNoop(t *testing.T) {
	fs := newFakeStore("alice")
	j := newTestJournal(t, fs)
	ctx := context.Background()
	if _, err := j.StartEntry(ctx, testDay); err != nil {
		t.Fatalf("StartEntry: %v", err)
	}

	for _, tok := range []string{"mood;0;17082025", "mood;6;17082025", "mood;x;17082025"} {
		prompt, err := j.HandleSelection(ctx, tok)
		if err != nil {
			t.Errorf("HandleSelection(%q): %v", tok, err)
		}
		if prompt != nil {
			t.Errorf("HandleSelection(%q) rendered a prompt, want no-op", tok)
		}
	}
	if got := fs.entries["17082025"].Mood; got != 0 {
		t.Errorf("mood mutated to %d by invalid token", got)
	}
}

func TestPersonToggle(t *testing.T) {
	fs := newFakeStore("alice", "bob")
	j := newTestJournal(t, fs)
	ctx := context.Background()
	if _, err := j.StartEntry(ctx, testDay); err != nil {
		t.Fatalf("StartEntry: %v", err)
	}

	prompt, err := j.HandleSelection(ctx, "person;bob;17082025")
	if err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if got := fs.entries["17082025"].People; got != "bob" {
		t.Errorf("people = %q, want %q", got, "bob")
	}
	if prompt.Text != "Who were you with? (Currently selected: bob)" {
		t.Errorf("prompt text = %q", prompt.Text)
	}

	// Second press returns to the pre-toggle state.
	prompt, err = j.HandleSelection(ctx, "person;bob;17082025")
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if got := fs.entries["17082025"].People; got != "" {
		t.Errorf("people = %q after double toggle, want empty", got)
	}
	if prompt.Text != "Who were you with?" {
		t.Errorf("prompt text = %q, want base question", prompt.Text)
	}
}

func TestPersonToggleOrder(t *testing.T) {
	fs := newFakeStore("alice", "bob", "carol")
	j := newTestJournal(t, fs)
	ctx := context.Background()
	if _, err := j.StartEntry(ctx, testDay); err != nil {
		t.Fatalf("StartEntry: %v", err)
	}

	for _, name := range []string{"carol", "alice"} {
		if _, err := j.HandleSelection(ctx, "person;"+name+";17082025"); err != nil {
			t.Fatalf("toggle %s: %v", name, err)
		}
	}
	if got := fs.entries["17082025"].People; got != "carol; alice" {
		t.Errorf("people = %q, want insertion order %q", got, "carol; alice")
	}
}

func TestUnknownPersonIsNoop(t *testing.T) {
	fs := newFakeStore("alice")
	j := newTestJournal(t, fs)
	ctx := context.Background()
	if _, err := j.StartEntry(ctx, testDay); err != nil {
		t.Fatalf("StartEntry: %v", err)
	}

	prompt, err := j.HandleSelection(ctx, "person;mallory;17082025")
	if err != nil {
		t.Fatalf("HandleSelection: %v", err)
	}
	if prompt != nil {
		t.Error("unknown person rendered a prompt, want no-op")
	}
	if got := fs.entries["17082025"].People; got != "" {
		t.Errorf("people mutated to %q", got)
	}
}

func TestDonePeopleWithAnySelectionCount(t *testing.T) {
	for _, selections := range [][]string{nil, {"alice"}, {"alice", "bob"}} {
		fs := newFakeStore("alice", "bob")
		j := newTestJournal(t, fs)
		ctx := context.Background()
		if _, err := j.StartEntry(ctx, testDay); err != nil {
			t.Fatalf("StartEntry: %v", err)
		}
		for _, name := range selections {
			if _, err := j.HandleSelection(ctx, "person;"+name+";17082025"); err != nil {
				t.Fatalf("toggle %s: %v", name, err)
			}
		}

		before := fs.entries["17082025"]
		prompt, err := j.HandleSelection(ctx, "done_people;none;17082025")
		if err != nil {
			t.Fatalf("done_people (%d selected): %v", len(selections), err)
		}
		if prompt == nil || !containsMarker(prompt.Text) {
			t.Fatalf("expected notes prompt, got %v", prompt)
		}
		if len(prompt.Buttons) != 1 || prompt.Buttons[0][0].Token != "no_notes;none;17082025" {
			t.Errorf("notes prompt keyboard = %v", prompt.Buttons)
		}
		if fs.entries["17082025"] != before {
			t.Error("done_people mutated the entry")
		}
	}
}

func TestNoNotesClosesFlow(t *testing.T) {
	fs := newFakeStore("alice")
	j := newTestJournal(t, fs)
	ctx := context.Background()
	if _, err := j.StartEntry(ctx, testDay); err != nil {
		t.Fatalf("StartEntry: %v", err)
	}

	prompt, err := j.HandleSelection(ctx, "no_notes;none;17082025")
	if err != nil {
		t.Fatalf("no_notes: %v", err)
	}
	if prompt == nil || len(prompt.Buttons) != 0 {
		t.Fatalf("expected buttonless closing prompt, got %v", prompt)
	}
	if got := fs.entries["17082025"].Notes; got != "" {
		t.Errorf("notes = %q, want empty", got)
	}
}

func TestMalformedTokensAreNoops(t *testing.T) {
	fs := newFakeStore("alice")
	j := newTestJournal(t, fs)
	ctx := context.Background()
	if _, err := j.StartEntry(ctx, testDay); err != nil {
		t.Fatalf("StartEntry: %v", err)
	}

	for _, tok := range []string{"", "mood", "mood;3", ";;", "teleport;9;17082025", "mood;3;"} {
		prompt, err := j.HandleSelection(ctx, tok)
		if err != nil {
			t.Errorf("HandleSelection(%q): %v", tok, err)
		}
		if prompt != nil {
			t.Errorf("HandleSelection(%q) rendered a prompt, want no-op", tok)
		}
	}
}

func TestStaleTokenForMissingDayIsNoop(t *testing.T) {
	fs := newFakeStore("alice")
	j := newTestJournal(t, fs)

	// No StartEntry — simulates a keyboard replayed after the row is gone.
	prompt, err := j.HandleSelection(context.Background(), "mood;3;01011999")
	if err != nil {
		t.Fatalf("HandleSelection: %v", err)
	}
	if prompt != nil {
		t.Error("stale token rendered a prompt, want no-op")
	}
}

func TestHandleReply(t *testing.T) {
	fs := newFakeStore("alice")
	j := newTestJournal(t, fs)
	ctx := context.Background()
	if _, err := j.StartEntry(ctx, testDay); err != nil {
		t.Fatalf("StartEntry: %v", err)
	}

	// A reply to something else is not part of the journal flow.
	handled, err := j.HandleReply(ctx, "Hello there", "17082025", "not a note")
	if err != nil {
		t.Fatalf("HandleReply (unmatched): %v", err)
	}
	if handled {
		t.Error("unmatched reply was handled")
	}
	if got := fs.entries["17082025"].Notes; got != "" {
		t.Errorf("notes mutated to %q by unmatched reply", got)
	}

	// A reply to the notes prompt records the note.
	handled, err = j.HandleReply(ctx, "Add a note by replying to this message or click No notes", "17082025", "finished")
	if err != nil {
		t.Fatalf("HandleReply (matched): %v", err)
	}
	if !handled {
		t.Fatal("matched reply was not handled")
	}
	if got := fs.entries["17082025"].Notes; got != "finished" {
		t.Errorf("notes = %q, want %q", got, "finished")
	}
}

func TestStorageFailureSurfaces(t *testing.T) {
	fs := newFakeStore("alice")
	j := newTestJournal(t, fs)
	ctx := context.Background()
	if _, err := j.StartEntry(ctx, testDay); err != nil {
		t.Fatalf("StartEntry: %v", err)
	}

	fs.failOp = "update"
	_, err := j.HandleSelection(ctx, "mood;4;17082025")
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if got := fs.entries["17082025"].Mood; got != 0 {
		t.Errorf("mood = %d after failed update, want pre-call value 0", got)
	}

	handled, err := j.HandleReply(ctx, notesPromptText, "17082025", "lost note")
	if !handled {
		t.Error("reply to notes prompt should be handled even on failure")
	}
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError from HandleReply, got %v", err)
	}
}

// TestFullScenario walks one complete journal day end to end.
func TestFullScenario(t *testing.T) {
	fs := newFakeStore("alice", "bob")
	j := newTestJournal(t, fs)
	ctx := context.Background()

	if _, err := j.StartEntry(ctx, testDay); err != nil {
		t.Fatalf("StartEntry: %v", err)
	}
	e := fs.entries["17082025"]
	if e.ID != "17082025" || e.Mood != 0 || e.People != "" || e.Notes != "" {
		t.Fatalf("fresh entry = %+v", e)
	}

	prompt, err := j.HandleSelection(ctx, "mood;4;17082025")
	if err != nil {
		t.Fatalf("mood: %v", err)
	}
	if fs.entries["17082025"].Mood != 4 {
		t.Fatalf("mood = %d", fs.entries["17082025"].Mood)
	}
	// Two known people fit in a single row, plus Done.
	if len(prompt.Buttons) != 2 || len(prompt.Buttons[0]) != 2 {
		t.Fatalf("people keyboard = %v", prompt.Buttons)
	}

	if _, err := j.HandleSelection(ctx, "person;bob;17082025"); err != nil {
		t.Fatalf("toggle bob: %v", err)
	}
	if got := fs.entries["17082025"].People; got != "bob" {
		t.Fatalf("people = %q", got)
	}
	if _, err := j.HandleSelection(ctx, "person;bob;17082025"); err != nil {
		t.Fatalf("untoggle bob: %v", err)
	}
	if got := fs.entries["17082025"].People; got != "" {
		t.Fatalf("people = %q after untoggle", got)
	}

	prompt, err = j.HandleSelection(ctx, "done_people;none;17082025")
	if err != nil {
		t.Fatalf("done_people: %v", err)
	}
	if !containsMarker(prompt.Text) {
		t.Fatalf("expected notes prompt, got %q", prompt.Text)
	}

	handled, err := j.HandleReply(ctx, prompt.Text, "17082025", "finished")
	if err != nil || !handled {
		t.Fatalf("HandleReply: handled=%v err=%v", handled, err)
	}
	if got := fs.entries["17082025"].Notes; got != "finished" {
		t.Errorf("notes = %q, want %q", got, "finished")
	}
}
