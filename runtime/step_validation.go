package runtime

import "fmt"

// CheckStepIDs reports the first step id used more than once. Step state and
// answer history are keyed by id, so a script with repeated ids cannot run.
func CheckStepIDs(steps []Step) error {
	seen := make(map[string]bool, len(steps))
	for _, s := range steps {
		if s.ID == "" {
			continue
		}
		if seen[s.ID] {
			return malformed(s, "duplicate step id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// Validate checks that the step carries every field its kind requires.
// It returns a *StepError naming the step when it does not.
func (s Step) Validate() error {
	if s.ID == "" {
		return malformed(s, "step has no id")
	}

	switch s.Kind {
	case KindMessage:
		if s.Message == nil {
			return malformed(s, "message step has no message data")
		}
		switch s.Message.Content.Type {
		case ContentText, ContentImage, ContentForm:
		default:
			return malformed(s, "unknown content type %q", s.Message.Content.Type)
		}
		return nil

	case KindSkipper:
		if s.Skipper == nil {
			return malformed(s, "skipper step has no skipper data")
		}
		if err := validate.Struct(s.Skipper); err != nil {
			return malformed(s, "invalid skipper: %s", formatValidationErrors(err, "; "))
		}
		return nil

	case KindRelayer:
		if s.Job == nil {
			return malformed(s, "relayer step has no job")
		}
		return s.Job.validate(s)

	case KindCloser:
		// A closer without a job simply ends the conversation.
		if s.Job == nil {
			return nil
		}
		return s.Job.validate(s)

	default:
		return malformed(s, "unknown step kind %q", s.Kind)
	}
}

func (j *Job) validate(s Step) error {
	switch j.Kind {
	case JobScript:
		if j.Script == "" {
			return jobMalformed(s, j, "script job has no script")
		}
	case JobWebhook:
		if j.Endpoint == "" {
			return jobMalformed(s, j, "webhook job has no endpoint")
		}
		if err := validate.Var(j.Endpoint, "url_format"); err != nil {
			return jobMalformed(s, j, fmt.Sprintf("webhook endpoint %q is not a valid URL", j.Endpoint))
		}
	case JobFormPush:
		if j.FormSelector == "" {
			return jobMalformed(s, j, "formPush job has no formSelector")
		}
		if err := validate.Struct(j); err != nil {
			return jobMalformed(s, j, "invalid dataMapper: "+formatValidationErrors(err, "; "))
		}
		for _, m := range j.DataMapper {
			if m.Custom && m.CustomValueScript == "" {
				return jobMalformed(s, j, fmt.Sprintf("custom mapping for %q has no customValueScript", m.To))
			}
			if !m.Custom && m.From == "" {
				return jobMalformed(s, j, fmt.Sprintf("mapping for %q has no from key", m.To))
			}
		}
	case "":
		return jobMalformed(s, j, "job kind is missing")
	default:
		return &StepError{
			Code:    ErrorCodeUnknownJob,
			Step:    s.ID,
			Kind:    s.Kind,
			Job:     j.Kind,
			Message: fmt.Sprintf("unknown job kind %q", j.Kind),
		}
	}
	return nil
}

func jobMalformed(s Step, j *Job, msg string) *StepError {
	err := malformed(s, "%s", msg)
	err.Job = j.Kind
	return err
}
