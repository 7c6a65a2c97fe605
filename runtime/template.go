package runtime

import "regexp"

// placeholderPattern matches {{key}} non-greedily.
var placeholderPattern = regexp.MustCompile(`\{\{(.+?)\}\}`)

// Substitute returns a copy of message with every {{key}} in a string text
// body replaced by the text form of values[key]. Absent keys and values with
// no text form become the empty string. Other content passes through.
func Substitute(message Message, values Values) Message {
	if message.Content.Type != ContentText {
		return message
	}
	body, ok := message.Content.Props.Children.(string)
	if !ok {
		return message
	}

	out := message.clone()
	out.Content.Props.Children = placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		text, _ := textValue(values[key])
		return text
	})
	return out
}
