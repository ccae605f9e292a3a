package journal

import (
	"strconv"
	"strings"

	"github.com/glados-labs/glados/pkg/channel"
)

// Token kinds understood by the state machine. Every button token is a
// semicolon-delimited triple "kind;value;day_key"; the value must never
// itself contain a semicolon.
const (
	kindMood       = "mood"
	kindPerson     = "person"
	kindDonePeople = "done_people"
	kindNoNotes    = "no_notes"
)

const (
	moodPromptText   = "How are you feeling today?"
	peoplePromptText = "Who were you with?"
	closingText      = "Journal entry saved. Have a great day!"
	noteSavedText    = "Note added. Journal entry complete."
	failureText      = "I seem to have misplaced your journal. Storage error. Try again."

	// notesPromptMarker is the correlation phrase: a free-text message is
	// a note submission only when it replies to a message containing it.
	notesPromptMarker = "Add a note by replying"
	notesPromptText   = "Add a note by replying to this message or click No notes"

	// maxButtonsPerRow bounds people keyboard width for layout.
	maxButtonsPerRow = 4
)

// moodLabels index i maps to mood value i+1.
var moodLabels = []string{"😭", "😢", "😐", "🙂", "🤩"}

// encodeToken builds a button token "kind;value;day_key".
func encodeToken(kind, value, dayKey string) string {
	return kind + ";" + value + ";" + dayKey
}

// decodeToken splits a button token back into its parts.
// Returns ok=false for anything that is not a well-formed triple.
func decodeToken(token string) (kind, value, dayKey string, ok bool) {
	parts := strings.Split(token, ";")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// parsePeople splits the at-rest "alice; bob" representation into the
// member list, preserving insertion order and dropping empties.
func parsePeople(s string) []string {
	var people []string
	for _, p := range strings.Split(s, ";") {
		p = strings.TrimSpace(p)
		if p != "" {
			people = append(people, p)
		}
	}
	return people
}

// joinPeople serializes a member list back to the at-rest representation.
func joinPeople(people []string) string {
	return strings.Join(people, "; ")
}

// moodPrompt is the initial prompt: five mood options in one row.
func moodPrompt(dayKey string) channel.Prompt {
	row := make([]channel.Button, len(moodLabels))
	for i, label := range moodLabels {
		row[i] = channel.Button{
			Label: label,
			Token: encodeToken(kindMood, strconv.Itoa(i+1), dayKey),
		}
	}
	return channel.Prompt{
		Text:    moodPromptText,
		Buttons: [][]channel.Button{row},
	}
}

// peoplePrompt renders the people-selection step: one button per known
// person chunked into fixed-width rows, a trailing Done button, and
// prompt text reflecting the current selection.
func peoplePrompt(people []Person, selected []string, dayKey string) channel.Prompt {
	var rows [][]channel.Button
	var row []channel.Button
	for _, p := range people {
		row = append(row, channel.Button{
			Label: titleCase(p.Name),
			Token: encodeToken(kindPerson, p.Name, dayKey),
		})
		if len(row) == maxButtonsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []channel.Button{
		{Label: "Done", Token: encodeToken(kindDonePeople, "none", dayKey)},
	})

	text := peoplePromptText
	if len(selected) > 0 {
		text = peoplePromptText + " (Currently selected: " + strings.Join(selected, ", ") + ")"
	}
	return channel.Prompt{Text: text, Buttons: rows}
}

// notesPrompt is the final interactive step: reply with a note, or skip.
func notesPrompt(dayKey string) channel.Prompt {
	return channel.Prompt{
		Text: notesPromptText,
		Buttons: [][]channel.Button{
			{{Label: "No notes", Token: encodeToken(kindNoNotes, "none", dayKey)}},
		},
	}
}

// closingPrompt acknowledges completion; no buttons.
func closingPrompt() channel.Prompt {
	return channel.Prompt{Text: closingText}
}

// containsMarker reports whether a replied-to text is the notes prompt.
func containsMarker(s string) bool {
	return strings.Contains(s, notesPromptMarker)
}

// titleCase capitalizes the first letter of a canonical lowercase name.
func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
