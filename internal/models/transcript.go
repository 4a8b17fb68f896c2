package models

import "strings"

// Label returns the human readable speaker name used in transcripts and views.
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	}
	return string(r)
}

// Transcript flattens sealed messages into role-prefixed plain text, one turn per paragraph. Open
// messages are left out since their text is not final yet.
func Transcript(messages []Message) string {
	turns := make([]string, 0, len(messages))
	for _, msg := range messages {
		if msg.Open {
			continue
		}
		turns = append(turns, msg.Role.Label()+": "+msg.Text())
	}
	return strings.Join(turns, "\n\n")
}
