package runtime

// StepKind discriminates the four step variants of a conversation script.
type StepKind string

const (
	KindMessage StepKind = "message"
	KindSkipper StepKind = "skipper"
	KindRelayer StepKind = "relayer"
	KindCloser  StepKind = "closer"
)

// ContentType discriminates message content.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentForm  ContentType = "form"
)

// JobKind selects the side effect performed by a relayer or closer.
type JobKind string

const (
	JobScript   JobKind = "script"
	JobWebhook  JobKind = "webhook"
	JobFormPush JobKind = "formPush"
)

// Step is one unit of a conversation script. Exactly one of Message, Skipper
// or Job is set, according to Kind. A closer may carry no job at all.
type Step struct {
	ID        string
	Kind      StepKind
	Completed bool
	Message   *Message
	Skipper   *Skipper
	Job       *Job
}

// Message is a displayable unit of the conversation.
type Message struct {
	ID        string  `json:"id" yaml:"id"`
	Human     bool    `json:"human" yaml:"human"`
	Content   Content `json:"content" yaml:"content"`
	Before    string  `json:"before,omitempty" yaml:"before,omitempty"`
	After     string  `json:"after,omitempty" yaml:"after,omitempty"`
	Completed bool    `json:"completed" yaml:"completed"`
	Updated   bool    `json:"updated,omitempty" yaml:"updated,omitempty"`
}

type Content struct {
	Type  ContentType  `json:"type" yaml:"type"`
	Props ContentProps `json:"props" yaml:"props"`
}

// ContentProps holds the variant payload of a Content.
//   - text:  Children (usually a string)
//   - image: Key
//   - form:  FormType, Fields, Values (submitted answers)
type ContentProps struct {
	Children any            `json:"children,omitempty" yaml:"children,omitempty"`
	Key      string         `json:"key,omitempty" yaml:"key,omitempty"`
	FormType string         `json:"formType,omitempty" yaml:"formType,omitempty"`
	Fields   map[string]any `json:"fields,omitempty" yaml:"fields,omitempty"`
	Values   map[string]any `json:"values,omitempty" yaml:"values,omitempty"`
}

// Skipper suppresses the SkipNumber steps that follow it when its predicate
// holds. Without any predicate the skip is unconditional.
type Skipper struct {
	SkipNumber int         `json:"skipNumber" yaml:"skipNumber" validate:"gte=0"`
	Condition  string      `json:"condition,omitempty" yaml:"condition,omitempty"`
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty" validate:"dive"`
	Logic      Logic       `json:"logic,omitempty" yaml:"logic,omitempty" validate:"omitempty,oneof=and or"`
}

type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// Condition compares the collected value under Key with Pattern.
type Condition struct {
	Key      string   `json:"key" yaml:"key" validate:"required"`
	Operator Operator `json:"operator" yaml:"operator" validate:"required,oneof=eq ne gt gte lt lte includes match empty notEmpty"`
	Pattern  any      `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpIncludes Operator = "includes"
	OpMatch    Operator = "match"
	OpEmpty    Operator = "empty"
	OpNotEmpty Operator = "notEmpty"
)

// Job is the side effect descriptor of a relayer or closer step.
type Job struct {
	Kind         JobKind        `json:"job" yaml:"job"`
	Script       string         `json:"script,omitempty" yaml:"script,omitempty"`
	Endpoint     string         `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	FormSelector string         `json:"formSelector,omitempty" yaml:"formSelector,omitempty"`
	DataMapper   []FieldMapping `json:"dataMapper,omitempty" yaml:"dataMapper,omitempty" validate:"dive"`
	Ajax         bool           `json:"ajax,omitempty" yaml:"ajax,omitempty"`
	OnSubmit     string         `json:"onSubmit,omitempty" yaml:"onSubmit,omitempty"`
}

// FieldMapping copies a collected value into a form field. When Custom is
// set the field value is the result of CustomValueScript instead.
type FieldMapping struct {
	From              string `json:"from" yaml:"from"`
	To                string `json:"to" yaml:"to" validate:"required"`
	Custom            bool   `json:"custom,omitempty" yaml:"custom,omitempty"`
	CustomValueScript string `json:"customValueScript,omitempty" yaml:"customValueScript,omitempty"`
}

// Theme is passed through to the renderer untouched.
type Theme map[string]any

// ChatConfig is the conversation configuration shared through the channel.
// OnStart fires when the first message becomes visible, OnClose when a
// closer is reached. Neither callback crosses the channel.
type ChatConfig struct {
	Theme    Theme     `json:"theme,omitempty" yaml:"theme,omitempty"`
	Messages []Message `json:"messages" yaml:"messages"`
	Progress float64   `json:"percentOfProgress" yaml:"percentOfProgress"`
	Closed   bool      `json:"closed,omitempty" yaml:"closed,omitempty"`
	OnStart  func()    `json:"-" yaml:"-"`
	OnClose  func()    `json:"-" yaml:"-"`
}

// Clone returns a copy that shares no mutable state with c.
func (c ChatConfig) Clone() ChatConfig {
	out := c
	if c.Theme != nil {
		out.Theme = make(Theme, len(c.Theme))
		for k, v := range c.Theme {
			out.Theme[k] = v
		}
	}
	out.Messages = cloneMessages(c.Messages)
	return out
}

// Clone returns a deep copy of the step.
func (s Step) Clone() Step {
	out := s
	if s.Message != nil {
		m := s.Message.clone()
		out.Message = &m
	}
	if s.Skipper != nil {
		sk := *s.Skipper
		sk.Conditions = append([]Condition(nil), s.Skipper.Conditions...)
		out.Skipper = &sk
	}
	if s.Job != nil {
		j := *s.Job
		j.DataMapper = append([]FieldMapping(nil), s.Job.DataMapper...)
		out.Job = &j
	}
	return out
}

func (m Message) clone() Message {
	out := m
	out.Content.Props.Fields = copyMap(m.Content.Props.Fields)
	out.Content.Props.Values = copyMap(m.Content.Props.Values)
	return out
}

// CloneSteps deep-copies a script.
func CloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = s.Clone()
	}
	return out
}

func cloneMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	for i, m := range messages {
		out[i] = m.clone()
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
