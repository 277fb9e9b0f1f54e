package prompt

import "regexp"

var variablePattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render replaces {{variable}} placeholders in body with values from vars.
// The scan runs once over the original body, so substituted values are never
// re-scanned for further placeholders. Placeholders without a supplied value
// are left verbatim and extra keys are ignored; callers that want strictness
// can diff with MissingVariables. No escaping is applied.
func Render(body string, vars map[string]string) string {
	return variablePattern.ReplaceAllStringFunc(body, func(match string) string {
		key := match[2 : len(match)-2] // strip {{ and }}
		if val, ok := vars[key]; ok {
			return val
		}
		return match
	})
}

// ExtractVariables returns the deduplicated variable names found in body, in
// order of first appearance.
func ExtractVariables(body string) []string {
	matches := variablePattern.FindAllStringSubmatch(body, -1)
	seen := make(map[string]bool)
	var vars []string
	for _, m := range matches {
		if len(m) > 1 && !seen[m[1]] {
			vars = append(vars, m[1])
			seen[m[1]] = true
		}
	}
	return vars
}

// MissingVariables lists placeholders in body that have no value in vars.
func MissingVariables(body string, vars map[string]string) []string {
	var missing []string
	for _, v := range ExtractVariables(body) {
		if _, ok := vars[v]; !ok {
			missing = append(missing, v)
		}
	}
	return missing
}
