package detect

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/sentrygate/sentrygate/internal/models"
)

// SignaturePack is the data-driven registration table of attack signatures.
// Categories are added by data, not new code paths; the category set itself
// is closed (models.KnownCategories).
type SignaturePack struct {
	Categories []CategorySignatures `yaml:"categories"`
	ScannerUAs []string             `yaml:"scanner_user_agents"`
}

// CategorySignatures holds the ordered pattern list for one attack category.
type CategorySignatures struct {
	Category   models.AttackCategory `yaml:"category"`
	Code       string                `yaml:"code"`
	Severity   models.Severity       `yaml:"severity"`
	Confidence float64               `yaml:"confidence"`
	Patterns   []string              `yaml:"patterns"`
}

// compiledCategory is a category with its patterns compiled.
type compiledCategory struct {
	CategorySignatures
	compiled []*regexp.Regexp
}

// ParsePack parses and validates a YAML signature pack.
// Invalid packs (unknown category, bad severity, uncompilable pattern) are
// rejected here so misconfiguration is a startup failure, not a per-request one.
func ParsePack(data []byte) (*SignaturePack, error) {
	var pack SignaturePack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse signature pack: %w", err)
	}

	if len(pack.Categories) == 0 {
		return nil, fmt.Errorf("signature pack has no categories")
	}

	seen := make(map[models.AttackCategory]bool)
	for _, cat := range pack.Categories {
		if !cat.Category.Valid() {
			return nil, fmt.Errorf("unknown attack category %q", cat.Category)
		}
		if seen[cat.Category] {
			return nil, fmt.Errorf("duplicate category %q in signature pack", cat.Category)
		}
		seen[cat.Category] = true

		if !cat.Severity.Valid() {
			return nil, fmt.Errorf("category %q: unknown severity %q", cat.Category, cat.Severity)
		}
		if cat.Confidence < 0 || cat.Confidence > 1 {
			return nil, fmt.Errorf("category %q: confidence out of range: %v", cat.Category, cat.Confidence)
		}
		if len(cat.Patterns) == 0 {
			return nil, fmt.Errorf("category %q has no patterns", cat.Category)
		}
		for _, p := range cat.Patterns {
			if _, err := regexp.Compile(p); err != nil {
				return nil, fmt.Errorf("category %q: invalid pattern %q: %w", cat.Category, p, err)
			}
		}
	}

	return &pack, nil
}

// LoadPackFile reads and validates a signature pack from disk.
func LoadPackFile(path string) (*SignaturePack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signature pack: %w", err)
	}
	return ParsePack(data)
}

// compile compiles all patterns. ParsePack has already validated them.
func (p *SignaturePack) compile() []compiledCategory {
	out := make([]compiledCategory, 0, len(p.Categories))
	for _, cat := range p.Categories {
		cc := compiledCategory{CategorySignatures: cat}
		for _, pat := range cat.Patterns {
			cc.compiled = append(cc.compiled, regexp.MustCompile(pat))
		}
		out = append(out, cc)
	}
	return out
}
