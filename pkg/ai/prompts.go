package ai

import (
	_ "embed"
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// DefaultLanguage is used when a requested language has no prompts.
const DefaultLanguage = "en"

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// Prompts is the locale table that turns requests into model prompts.
type Prompts struct {
	langs map[string]*promptSet
}

type promptSet struct {
	System  string           `yaml:"system"`
	Tones   map[Tone]string  `yaml:"tones"`
	Levels  map[Level]string `yaml:"levels"`
	Script  string           `yaml:"script"`
	Summary string           `yaml:"summary"`
	Answer  string           `yaml:"answer"`
	Speech  string           `yaml:"speech"`

	script, summary, answer, speech *template.Template
}

// DefaultPrompts returns the embedded English and Spanish table.
func DefaultPrompts() *Prompts {
	p, err := ParsePrompts(defaultPromptsYAML)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePrompts parses a YAML prompt table. Each language must cover every
// Tone and Level and define all templates.
func ParsePrompts(data []byte) (*Prompts, error) {
	var raw map[string]*promptSet
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("ai: parse prompts: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("ai: prompt table is empty")
	}
	for lang, ps := range raw {
		if ps == nil {
			return nil, fmt.Errorf("ai: prompts %s: empty", lang)
		}
		if err := ps.compile(lang); err != nil {
			return nil, err
		}
	}
	return &Prompts{langs: raw}, nil
}

func (ps *promptSet) compile(lang string) error {
	for _, t := range Tones {
		if ps.Tones[t] == "" {
			return fmt.Errorf("ai: prompts %s: missing tone %q", lang, t)
		}
	}
	for _, l := range Levels {
		if ps.Levels[l] == "" {
			return fmt.Errorf("ai: prompts %s: missing level %q", lang, l)
		}
	}
	parse := func(name, text string) (*template.Template, error) {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("ai: prompts %s: missing %s template", lang, name)
		}
		t, err := template.New(lang + "/" + name).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("ai: prompts %s: %w", lang, err)
		}
		return t, nil
	}
	var err error
	if ps.script, err = parse("script", ps.Script); err != nil {
		return err
	}
	if ps.summary, err = parse("summary", ps.Summary); err != nil {
		return err
	}
	if ps.answer, err = parse("answer", ps.Answer); err != nil {
		return err
	}
	if ps.speech, err = parse("speech", ps.Speech); err != nil {
		return err
	}
	return nil
}

// Languages returns the languages in the table, sorted.
func (p *Prompts) Languages() []string {
	return slices.Sorted(maps.Keys(p.langs))
}

// Has reports whether lang has its own prompts.
func (p *Prompts) Has(lang string) bool {
	_, ok := p.langs[lang]
	return ok
}

func (p *Prompts) set(lang string) *promptSet {
	if ps, ok := p.langs[lang]; ok {
		return ps
	}
	if ps, ok := p.langs[DefaultLanguage]; ok {
		return ps
	}
	// ParsePrompts rejects empty tables
	return p.langs[p.Languages()[0]]
}

// System returns the system instruction for lang.
func (p *Prompts) System(lang string) string {
	return strings.TrimSpace(p.set(lang).System)
}

// Script renders the script prompt. Unknown tones and levels are errors.
func (p *Prompts) Script(lang string, req ScriptRequest) (string, error) {
	ps := p.set(lang)
	tone, ok := ps.Tones[req.Tone]
	if !ok {
		return "", fmt.Errorf("ai: unknown tone %q", req.Tone)
	}
	audience, ok := ps.Levels[req.Level]
	if !ok {
		return "", fmt.Errorf("ai: unknown level %q", req.Level)
	}
	return render(ps.script, map[string]string{
		"Tone":     tone,
		"Audience": audience,
		"Text":     req.Text,
	})
}

// Summary renders the summary prompt.
func (p *Prompts) Summary(lang, text string) (string, error) {
	return render(p.set(lang).summary, map[string]string{"Text": text})
}

// Answer renders the question prompt.
func (p *Prompts) Answer(lang, contextText, question string) (string, error) {
	return render(p.set(lang).answer, map[string]string{
		"Context":  contextText,
		"Question": question,
	})
}

// Speech renders the instruction sent with text to a speech model that
// takes prompts.
func (p *Prompts) Speech(lang, text string) (string, error) {
	return render(p.set(lang).speech, map[string]string{"Text": text})
}

func render(t *template.Template, data map[string]string) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("ai: render %s: %w", t.Name(), err)
	}
	return strings.TrimSpace(sb.String()), nil
}
