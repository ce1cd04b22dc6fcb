package eval

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// placeholderRE matches {{ path }} occurrences. Leading and trailing space
// inside the braces is ignored.
var placeholderRE = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// RenderTemplate replaces {{path}} placeholders whose path starts with
// "vars." or "input." with the stringified resolved value. Placeholders that
// do not resolve, or whose path has another prefix, pass through verbatim.
func (c *Context) RenderTemplate(template string) string {
	return placeholderRE.ReplaceAllStringFunc(template, func(match string) string {
		path := strings.TrimSpace(strings.Trim(match, "{}"))
		if !strings.HasPrefix(path, "vars.") && !strings.HasPrefix(path, "input.") {
			return match
		}
		value, err := c.Resolve("$" + path)
		if err != nil || value == nil {
			return match
		}
		return Stringify(value)
	})
}

// Stringify renders a resolved value for templates and comparisons. Numbers
// print without a trailing exponent or spurious zeros; structured values
// print as compact JSON.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}
