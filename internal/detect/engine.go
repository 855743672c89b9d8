// Package detect classifies request content against known attack-category
// signatures. The engine is a pure function over its inputs: no I/O, no
// shared state, deterministic output.
package detect

import (
	_ "embed"
	"strings"

	"github.com/sentrygate/sentrygate/internal/models"
)

//go:embed signatures.yaml
var defaultPack []byte

const (
	// scannerCode is the standardized code attached to scanner UA hits.
	scannerCode = "A05:2021"

	// DefaultMaxInspectBytes caps how much request text is scanned.
	// Pattern evaluation stays length-bounded regardless of body size.
	DefaultMaxInspectBytes = 64 * 1024
)

// Engine evaluates signature packs against intercepted requests.
type Engine struct {
	categories      []compiledCategory
	scannerUAs      []string
	maxInspectBytes int
}

// NewEngine builds an engine from a validated signature pack.
// maxInspectBytes <= 0 selects DefaultMaxInspectBytes.
func NewEngine(pack *SignaturePack, maxInspectBytes int) *Engine {
	if maxInspectBytes <= 0 {
		maxInspectBytes = DefaultMaxInspectBytes
	}
	return &Engine{
		categories:      pack.compile(),
		scannerUAs:      pack.ScannerUAs,
		maxInspectBytes: maxInspectBytes,
	}
}

// NewDefaultEngine builds an engine from the embedded signature pack.
func NewDefaultEngine(maxInspectBytes int) (*Engine, error) {
	pack, err := ParsePack(defaultPack)
	if err != nil {
		return nil, err
	}
	return NewEngine(pack, maxInspectBytes), nil
}

// Inspect evaluates every registered category against the request and
// returns at most one Detection per category, in pack registration order.
// The scanner user-agent check is a separate category evaluated last.
func (e *Engine) Inspect(req models.RequestData) []models.Detection {
	content := e.inspectable(req)

	var detections []models.Detection
	for _, cat := range e.categories {
		for _, re := range cat.compiled {
			if re.MatchString(content) {
				detections = append(detections, models.Detection{
					Category:   cat.Category,
					Code:       cat.Code,
					Severity:   cat.Severity,
					Confidence: cat.Confidence,
				})
				break // first match per category wins
			}
		}
	}

	if ua := strings.ToLower(req.UserAgent); ua != "" {
		for _, sig := range e.scannerUAs {
			if strings.Contains(ua, sig) {
				detections = append(detections, models.Detection{
					Category:   models.CategoryScanner,
					Code:       scannerCode,
					Severity:   models.SeverityMedium,
					Confidence: 0.95,
				})
				break
			}
		}
	}

	return detections
}

// inspectable builds the lower-cased, length-capped text the patterns run on.
func (e *Engine) inspectable(req models.RequestData) string {
	var b strings.Builder
	b.Grow(len(req.URL) + len(req.Query) + len(req.Body) + 2)
	b.WriteString(req.URL)
	b.WriteByte(' ')
	b.WriteString(req.Query)
	b.WriteByte(' ')
	b.WriteString(req.Body)

	content := b.String()
	if len(content) > e.maxInspectBytes {
		content = content[:e.maxInspectBytes]
	}
	return strings.ToLower(content)
}
