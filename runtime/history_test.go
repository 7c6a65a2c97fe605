package runtime

import (
	"reflect"
	"testing"
)

func historyMessage(id string, completed bool) Message {
	return Message{ID: id, Completed: completed, Content: Content{Type: ContentText, Props: ContentProps{Children: id}}}
}

func TestApplyHistory(t *testing.T) {
	base := []Step{
		textStep("a", "hello", false),
		formStep("b", nil, false),
		relayerStep("r", false),
		textStep("c", "bye", true),
	}

	answered := Message{ID: "b", Completed: true, Content: Content{Type: ContentForm, Props: ContentProps{
		Values: map[string]any{"name": "Sam"},
	}}}
	history := []Message{
		historyMessage("a", true),
		answered,
		historyMessage("r", true),
		historyMessage("c", false),
		historyMessage("ghost", true),
	}

	got := ApplyHistory(base, history)

	if !got[0].Completed || !got[0].Message.Completed {
		t.Error("a should be completed from history")
	}
	if !got[1].Completed {
		t.Error("b should be completed from history")
	}
	if want := map[string]any{"name": "Sam"}; !reflect.DeepEqual(got[1].Message.Content.Props.Values, want) {
		t.Errorf("b values = %v, want %v", got[1].Message.Content.Props.Values, want)
	}
	if got[2].Completed {
		t.Error("relayer completion must not come from history")
	}
	if !got[3].Completed {
		t.Error("completed flag must never be reset")
	}

	if base[0].Completed || base[1].Message.Content.Props.Values != nil {
		t.Error("ApplyHistory modified its input")
	}

	answered.Content.Props.Values["name"] = "changed"
	if got[1].Message.Content.Props.Values["name"] != "Sam" {
		t.Error("values share storage with history")
	}
}

func TestReviseHistory(t *testing.T) {
	history := []Message{historyMessage("a", true), historyMessage("b", true), historyMessage("c", true)}

	tests := []struct {
		name    string
		updated Message
		want    []string
	}{
		{
			name:    "replace in place",
			updated: Message{ID: "b", Completed: true},
			want:    []string{"a", "b", "c"},
		},
		{
			name:    "updated drops later messages",
			updated: Message{ID: "b", Completed: true, Updated: true},
			want:    []string{"a", "b"},
		},
		{
			name:    "unknown id is appended",
			updated: Message{ID: "d", Completed: true},
			want:    []string{"a", "b", "c", "d"},
		},
		{
			name:    "updated unknown id is appended",
			updated: Message{ID: "d", Updated: true},
			want:    []string{"a", "b", "c", "d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReviseHistory(history, tt.updated)
			if ids := messageIDs(got); !reflect.DeepEqual(ids, tt.want) {
				t.Fatalf("ReviseHistory() ids = %v, want %v", ids, tt.want)
			}
			for _, m := range got {
				if m.Updated {
					t.Errorf("message %s stored with updated set", m.ID)
				}
			}
			if len(history) != 3 {
				t.Error("ReviseHistory modified its input")
			}
		})
	}
}
