package postmark

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Choice is one selectable entry for a form dropdown: a human label
// paired with the value the form submits.
type Choice struct {
	Label string
	Value string
}

// FormatServerChoices renders servers as form choices keyed by their
// first API token. Servers without a token are skipped because there is
// nothing to submit for them.
func FormatServerChoices(servers []Server) []Choice {
	choices := make([]Choice, 0, len(servers))
	for _, server := range servers {
		token := ""
		if len(server.ApiTokens) > 0 {
			token = strings.TrimSpace(server.ApiTokens[0])
		}
		if token == "" {
			continue
		}
		name := strings.TrimSpace(server.Name)
		if name == "" {
			name = "Unknown"
		}
		choices = append(choices, Choice{
			Label: name + " (ID: " + strconv.FormatInt(server.ID, 10) + ")",
			Value: token,
		})
	}
	return choices
}

// FormatTemplateChoices renders templates as form choices keyed by
// alias. Templates without an alias cannot be addressed by the send API
// and are skipped.
func FormatTemplateChoices(templates []Template) []Choice {
	choices := make([]Choice, 0, len(templates))
	for _, template := range templates {
		alias := strings.TrimSpace(template.Alias)
		if alias == "" {
			continue
		}
		name := strings.TrimSpace(template.Name)
		if name == "" {
			name = "Unknown"
		}
		choices = append(choices, Choice{
			Label: name + " (" + alias + ")",
			Value: alias,
		})
	}
	return choices
}

var templateVariablePattern = regexp.MustCompile(`\{\{\s*[#^/]?([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// handlebarsReserved are block-helper keywords that match the variable
// pattern but never name a substitution.
var handlebarsReserved = map[string]struct{}{
	"if":     {},
	"unless": {},
	"each":   {},
	"with":   {},
	"else":   {},
	"this":   {},
}

// TemplateVariables extracts the distinct substitution names referenced
// by a template's subject and bodies, sorted for stable presentation.
func TemplateVariables(template Template) []string {
	content := template.HtmlBody + " " + template.TextBody + " " + template.Subject
	seen := map[string]struct{}{}
	for _, match := range templateVariablePattern.FindAllStringSubmatch(content, -1) {
		name := match[1]
		if _, reserved := handlebarsReserved[name]; reserved {
			continue
		}
		seen[name] = struct{}{}
	}
	variables := make([]string, 0, len(seen))
	for name := range seen {
		variables = append(variables, name)
	}
	sort.Strings(variables)
	return variables
}
