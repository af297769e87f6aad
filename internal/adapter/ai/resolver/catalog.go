package resolver

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Concrete model ids used by the built-in catalog.
const (
	ClaudeHaiku   = "anthropic/claude-3-haiku"
	ClaudeSonnet  = "anthropic/claude-3-sonnet"
	ClaudeOpus    = "anthropic/claude-3-opus"
	GPT35Turbo    = "openai/gpt-3.5-turbo"
	GPT4Turbo     = "openai/gpt-4-turbo"
	DeepSeekFree  = "deepseek/deepseek-chat-v3-0324:free"
	LlamaFree     = "meta-llama/llama-3.1-8b-instruct:free"
	MistralFree   = "mistralai/mistral-7b-instruct:free"
	GemmaFree     = "google/gemma-3-4b-it:free"
	freeModelMark = ":free"
)

// Catalog is the complete, enumerable model mapping.
//
// Standard maps every logical name (including free-* aliases) to a concrete
// id. Free maps the logical names that have a free-tier substitute when the
// prefer-free mode is on. Fallback is the ordered roster tried after the
// primary model fails.
type Catalog struct {
	Standard map[string]string `yaml:"standard"`
	Free     map[string]string `yaml:"free"`
	Fallback []string          `yaml:"fallback"`
}

// DefaultCatalog returns a fresh copy of the built-in mapping.
func DefaultCatalog() Catalog {
	return Catalog{
		Standard: map[string]string{
			"default":  ClaudeHaiku,
			"fast":     ClaudeHaiku,
			"smart":    ClaudeSonnet,
			"vision":   ClaudeOpus,
			"balanced": GPT35Turbo,
			"powerful": GPT4Turbo,

			"free-deepseek-v3": DeepSeekFree,
			"free-llama":       LlamaFree,
			"free-mistral":     MistralFree,
			"free-gemini":      GemmaFree,
			"free-analysis":    MistralFree,
			"free-scraper":     LlamaFree,
			"free-code":        MistralFree,
		},
		Free: map[string]string{
			"default":  MistralFree,
			"fast":     MistralFree,
			"smart":    MistralFree,
			"powerful": MistralFree,
		},
		Fallback: []string{MistralFree, LlamaFree, GemmaFree, DeepSeekFree},
	}
}

// LoadCatalog reads a YAML override and merges it over the defaults. Entries
// in the file replace same-named defaults; a non-empty fallback list replaces
// the default roster wholesale.
func LoadCatalog(path string) (Catalog, error) {
	cat := DefaultCatalog()
	if path == "" {
		return cat, nil
	}
	// #nosec G304 -- operator supplied configuration path
	b, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("op=resolver.LoadCatalog: %w", err)
	}
	var override Catalog
	if err := yaml.Unmarshal(b, &override); err != nil {
		return Catalog{}, fmt.Errorf("op=resolver.LoadCatalog: %w", err)
	}
	for k, v := range override.Standard {
		cat.Standard[k] = v
	}
	for k, v := range override.Free {
		cat.Free[k] = v
	}
	if len(override.Fallback) > 0 {
		cat.Fallback = override.Fallback
	}
	if err := cat.Validate(); err != nil {
		return Catalog{}, fmt.Errorf("op=resolver.LoadCatalog: %w", err)
	}
	return cat, nil
}

// Validate rejects empty ids and duplicate roster entries.
func (c Catalog) Validate() error {
	for k, v := range c.Standard {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("standard model %q has empty id", k)
		}
	}
	for k, v := range c.Free {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("free model %q has empty id", k)
		}
	}
	seen := make(map[string]struct{}, len(c.Fallback))
	for _, m := range c.Fallback {
		if _, dup := seen[m]; dup {
			return fmt.Errorf("fallback roster lists %q twice", m)
		}
		seen[m] = struct{}{}
	}
	return nil
}

// ModelInfo is one row of the admin model listing.
type ModelInfo struct {
	Name string `json:"name"`
	ID   string `json:"id"`
	Free bool   `json:"free"`
}

// Models groups the standard table into free and paid entries, sorted by name.
func (c Catalog) Models() (free, paid []ModelInfo) {
	names := make([]string, 0, len(c.Standard))
	for k := range c.Standard {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, n := range names {
		id := c.Standard[n]
		info := ModelInfo{Name: n, ID: id, Free: IsFree(id)}
		if info.Free {
			free = append(free, info)
		} else {
			paid = append(paid, info)
		}
	}
	return free, paid
}

// IsFree reports whether id names a free-tier variant.
func IsFree(id string) bool { return strings.HasSuffix(id, freeModelMark) }
