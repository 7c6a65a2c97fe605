package runtime

// ApplyHistory merges the channel's message history back into the script.
// A message step with a matching history entry becomes completed once the
// entry is completed (it is never reset), and form answers are copied in.
// Steps are returned as new copies; history entries with unknown ids are ignored.
func ApplyHistory(steps []Step, history []Message) []Step {
	byID := make(map[string]Message, len(history))
	for _, m := range history {
		byID[m.ID] = m
	}

	out := CloneSteps(steps)
	for i := range out {
		s := &out[i]
		if s.Kind != KindMessage || s.Message == nil {
			continue
		}
		m, ok := byID[s.ID]
		if !ok {
			continue
		}
		if m.Completed && !s.Completed {
			s.Completed = true
			s.Message.Completed = true
		}
		if s.Message.Content.Type == ContentForm && m.Content.Type == ContentForm && m.Content.Props.Values != nil {
			s.Message.Content.Props.Values = copyMap(m.Content.Props.Values)
		}
	}
	return out
}

// ReviseHistory stores an answered or edited message. When updated is set,
// every message after it is dropped so the conversation replays from there.
// The stored copy has updated cleared. Unknown ids are appended.
func ReviseHistory(history []Message, updated Message) []Message {
	out := make([]Message, 0, len(history)+1)
	found := false
	for _, m := range history {
		if found && updated.Updated {
			break
		}
		if m.ID == updated.ID {
			found = true
			stored := updated.clone()
			stored.Updated = false
			out = append(out, stored)
			continue
		}
		out = append(out, m.clone())
	}
	if !found {
		stored := updated.clone()
		stored.Updated = false
		out = append(out, stored)
	}
	return out
}
