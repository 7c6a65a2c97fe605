package runtime

// Values is the map of answers collected from form messages, keyed by field name.
type Values map[string]any

// CollectValues merges the submitted values of every form message in script
// order. Later steps overwrite earlier ones for the same key.
func CollectValues(steps []Step) Values {
	values := Values{}
	for _, s := range steps {
		if s.Kind != KindMessage || s.Message == nil {
			continue
		}
		if s.Message.Content.Type != ContentForm {
			continue
		}
		for k, v := range s.Message.Content.Props.Values {
			values[k] = v
		}
	}
	return values
}

// Clone returns a shallow copy safe to hand to a concurrently running job.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}
