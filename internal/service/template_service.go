// internal/service/template_service.go
package service

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template identifiers.
const (
	TemplateD2            = "SMS_D2"
	TemplateD1            = "SMS_D1"
	TemplateD0            = "SMS_D0"
	TemplateAfterTattoo   = "SMS_AFTER_TATTOO"
	TemplateAfterPiercing = "SMS_AFTER_PIERCING"
	TemplateDepositBefore = "SMS_DEPOSIT_BEFORE"
	TemplateDepositAfter  = "SMS_DEPOSIT_AFTER"
)

// DefaultTemplates is the built-in catalog.
var DefaultTemplates = map[string]string{
	TemplateD2:            "Cześć {IMIE}! Wizyta {DATA} o {GODZ} w {STUDIO} – widzimy się pojutrze",
	TemplateD1:            "Hej {IMIE}! Jutro {DATA} o {GODZ} w {STUDIO}",
	TemplateD0:            "To dziś, {IMIE}! {GODZ} w {STUDIO}",
	TemplateAfterTattoo:   "Dzięki za wizytę {IMIE}! Pamiętaj o pielęgnacji tatuażu. 3 razy dziennie smaruj poleconym kremem, regularnie przemywaj tatuaż, unikaj słońca i kąpieli w zbiornikach wodnych. Zrezygnuj przez następne kilka dni z intensywnego wysiłku fizycznego. W razie pytań jesteśmy do dyspozycji! ({STUDIO})",
	TemplateAfterPiercing: "Dzięki za wizytę {IMIE}! Pielęgnacja piercingu: sól morska 2×/dzień, bez basenu/sauny przez 6 tygodni. W razie pytań jesteśmy do dyspozycji! ({STUDIO})",
	TemplateDepositBefore: "Prosimy o zadatek {KWOTA}zł za wizytę {DATA} {GODZ} w {STUDIO}",
	TemplateDepositAfter:  "{IMIE}, prosimy o zadatek {KWOTA}zł za wizytę {DATA} {GODZ} w {STUDIO}",
}

// RenderTemplate replaces every {KEY} in template with data[key], keys upper-cased.
// Placeholders without a value stay as they are. Replacement is a single pass, so
// values containing braces are never expanded again.
func RenderTemplate(template string, data map[string]string) string {
	if len(data) == 0 {
		return template
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+strings.ToUpper(k)+"}", data[k])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// TemplateService renders messages from a fixed catalog.
type TemplateService struct {
	Templates map[string]string
}

func NewTemplateService(overrides map[string]string) *TemplateService {
	templates := make(map[string]string, len(DefaultTemplates)+len(overrides))
	for id, body := range DefaultTemplates {
		templates[id] = body
	}
	for id, body := range overrides {
		templates[id] = body
	}
	return &TemplateService{Templates: templates}
}

// Render looks up templateID and fills in vars. An unknown id is rendered as
// the id itself.
func (s *TemplateService) Render(templateID string, vars map[string]string) string {
	body, ok := s.Templates[templateID]
	if !ok {
		body = templateID
	}
	return RenderTemplate(body, vars)
}

type templateFile struct {
	Templates map[string]string `yaml:"templates"`
}

// LoadTemplateOverrides reads a YAML file of the form
//
//  templates:
//    SMS_D1: "Hej {IMIE}! ..."
//
// An empty path yields no overrides.
func LoadTemplateOverrides(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	for id, body := range f.Templates {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("template id cannot be empty")
		}
		if strings.TrimSpace(body) == "" {
			return nil, fmt.Errorf("template %s cannot be empty", id)
		}
	}
	return f.Templates, nil
}
