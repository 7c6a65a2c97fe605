package runtime

import (
	"encoding/json"
	"fmt"

	goyaml "gopkg.in/yaml.v3"
)

// ScriptFormat selects the text serialization of a script.
type ScriptFormat string

const (
	FormatJSON ScriptFormat = "json"
	FormatYAML ScriptFormat = "yaml"
)

// stepWire is the stored shape of a step. Message fields may sit under data
// or directly on the step.
type stepWire struct {
	ID        string         `json:"id" yaml:"id"`
	Type      StepKind       `json:"type,omitempty" yaml:"type,omitempty"`
	Completed bool           `json:"completed" yaml:"completed"`
	Data      map[string]any `json:"data,omitempty" yaml:"data,omitempty"`

	Human   *bool          `json:"human,omitempty" yaml:"human,omitempty"`
	Content map[string]any `json:"content,omitempty" yaml:"content,omitempty"`
	Before  string         `json:"before,omitempty" yaml:"before,omitempty"`
	After   string         `json:"after,omitempty" yaml:"after,omitempty"`
}

// DecodeScript parses a stored script. Step order and completed flags are
// kept as written. A step that cannot be decoded, or that reuses an earlier
// step's id, fails with a *StepError.
func DecodeScript(data []byte, format ScriptFormat) ([]Step, error) {
	var wires []stepWire
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &wires); err != nil {
			return nil, fmt.Errorf("error unmarshalling JSON script: %w", err)
		}
	case FormatYAML:
		if err := goyaml.Unmarshal(data, &wires); err != nil {
			return nil, fmt.Errorf("error unmarshalling YAML script: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported script format %q", format)
	}

	steps := make([]Step, 0, len(wires))
	for _, w := range wires {
		step, err := w.toStep()
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	if err := CheckStepIDs(steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// EncodeScript serializes steps as {id, type, completed, data} records.
func EncodeScript(steps []Step, format ScriptFormat) ([]byte, error) {
	wires := make([]stepWire, 0, len(steps))
	for _, s := range steps {
		w, err := fromStep(s)
		if err != nil {
			return nil, err
		}
		wires = append(wires, w)
	}

	switch format {
	case FormatJSON:
		return json.MarshalIndent(wires, "", "  ")
	case FormatYAML:
		return goyaml.Marshal(wires)
	default:
		return nil, fmt.Errorf("unsupported script format %q", format)
	}
}

func (w stepWire) toStep() (Step, error) {
	step := Step{ID: w.ID, Kind: w.Type, Completed: w.Completed}
	data := w.messageData()
	if step.Kind == "" {
		step.Kind = inferKind(data)
	}

	switch step.Kind {
	case KindMessage:
		var m Message
		if err := mapToStruct(data, &m); err != nil {
			return step, decodeError(step, err)
		}
		if m.Content.Type == "string" {
			m.Content.Type = ContentText
		}
		m.ID = step.ID
		m.Completed = step.Completed
		step.Message = &m

	case KindSkipper:
		var sk Skipper
		if err := mapToStruct(data, &sk); err != nil {
			return step, decodeError(step, err)
		}
		step.Skipper = &sk

	case KindRelayer, KindCloser:
		if len(data) == 0 {
			break
		}
		var j Job
		if err := mapToStruct(data, &j); err != nil {
			return step, decodeError(step, err)
		}
		step.Job = &j

	default:
		return step, malformed(step, "cannot determine step type")
	}
	return step, nil
}

// messageData folds top-level message fields into data.
func (w stepWire) messageData() map[string]any {
	data := copyMap(w.Data)
	if data == nil {
		data = map[string]any{}
	}
	if w.Content != nil {
		data["content"] = w.Content
	}
	if w.Human != nil {
		data["human"] = *w.Human
	}
	if w.Before != "" {
		data["before"] = w.Before
	}
	if w.After != "" {
		data["after"] = w.After
	}
	return data
}

func inferKind(data map[string]any) StepKind {
	if _, ok := data["content"]; ok {
		return KindMessage
	}
	if _, ok := data["job"]; ok {
		return KindRelayer
	}
	for _, key := range []string{"skipNumber", "condition", "conditions"} {
		if _, ok := data[key]; ok {
			return KindSkipper
		}
	}
	return ""
}

func fromStep(s Step) (stepWire, error) {
	w := stepWire{ID: s.ID, Type: s.Kind, Completed: s.Completed}

	var payload any
	switch s.Kind {
	case KindMessage:
		if s.Message != nil {
			payload = s.Message
		}
	case KindSkipper:
		if s.Skipper != nil {
			payload = s.Skipper
		}
	case KindRelayer, KindCloser:
		if s.Job != nil {
			payload = s.Job
		}
	default:
		return w, malformed(s, "unknown step kind %q", s.Kind)
	}
	if payload == nil {
		return w, nil
	}

	data, err := structToMap(payload)
	if err != nil {
		return w, decodeError(s, err)
	}
	if s.Kind == KindMessage {
		delete(data, "id")
		delete(data, "completed")
	}
	w.Data = data
	return w, nil
}

func decodeError(step Step, err error) *StepError {
	e := malformed(step, "cannot decode step data")
	e.Cause = err
	return e
}
