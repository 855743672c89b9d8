package detect

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentrygate/sentrygate/internal/models"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewDefaultEngine(0)
	require.NoError(t, err)
	return engine
}

func categories(detections []models.Detection) []models.AttackCategory {
	if len(detections) == 0 {
		return nil
	}
	out := make([]models.AttackCategory, 0, len(detections))
	for _, d := range detections {
		out = append(out, d.Category)
	}
	return out
}

func TestInspect_AttackCategories(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name     string
		req      models.RequestData
		expected []models.AttackCategory
	}{
		{
			name:     "sql injection in query",
			req:      models.RequestData{URL: "/search", Query: "q=1 UNION SELECT password FROM users"},
			expected: []models.AttackCategory{models.CategorySQLInjection},
		},
		{
			name:     "xss in body",
			req:      models.RequestData{URL: "/comment", Body: `<script>alert(1)</script>`},
			expected: []models.AttackCategory{models.CategoryXSS},
		},
		{
			name:     "path traversal",
			req:      models.RequestData{URL: "/files?name=../../etc/passwd"},
			expected: []models.AttackCategory{models.CategoryPathTraversal},
		},
		{
			name:     "command injection",
			req:      models.RequestData{Query: "host=example.com; cat /etc/hosts"},
			expected: []models.AttackCategory{models.CategoryCommandInjection},
		},
		{
			name:     "xxe",
			req:      models.RequestData{Body: `<!ENTITY xxe SYSTEM "file:///secrets.txt">`},
			expected: []models.AttackCategory{models.CategoryXXE, models.CategorySSRF},
		},
		{
			name:     "ssrf",
			req:      models.RequestData{Query: "url=http://169.254.169.254/latest/meta-data"},
			expected: []models.AttackCategory{models.CategorySSRF},
		},
		{
			name:     "scanner user agent",
			req:      models.RequestData{URL: "/", UserAgent: "sqlmap/1.7"},
			expected: []models.AttackCategory{models.CategoryScanner},
		},
		{
			name:     "benign request",
			req:      models.RequestData{URL: "/products", Query: "page=2", Body: "hello", UserAgent: "Mozilla/5.0"},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Inspect(tt.req)
			assert.Equal(t, tt.expected, categories(got))
		})
	}
}

func TestInspect_NoDuplicatePerCategory(t *testing.T) {
	engine := newTestEngine(t)

	// Multiple SQL injection patterns present; exactly one detection.
	req := models.RequestData{
		Query: "id=1 UNION SELECT * FROM t; DROP TABLE users; SLEEP(5)",
	}
	got := engine.Inspect(req)
	require.Len(t, got, 1)
	assert.Equal(t, models.CategorySQLInjection, got[0].Category)
	assert.Equal(t, models.SeverityCritical, got[0].Severity)
	assert.Equal(t, "A03:2021", got[0].Code)
}

func TestInspect_Deterministic(t *testing.T) {
	engine := newTestEngine(t)
	req := models.RequestData{
		URL:       "/login",
		Query:     "user=' OR '1'='1",
		Body:      `<script>document.cookie</script>`,
		UserAgent: "nikto",
	}

	first := engine.Inspect(req)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, engine.Inspect(req))
	}
}

func TestInspect_CaseInsensitive(t *testing.T) {
	engine := newTestEngine(t)

	lower := engine.Inspect(models.RequestData{Query: "q=union select 1"})
	upper := engine.Inspect(models.RequestData{Query: "q=UNION SELECT 1"})
	assert.Equal(t, lower, upper)
	require.NotEmpty(t, lower)
}

func TestInspect_LargeInputBounded(t *testing.T) {
	engine := newTestEngine(t)

	// Attack payload buried past the inspection cap is not scanned;
	// the call must still return quickly and safely.
	padding := strings.Repeat("a", DefaultMaxInspectBytes+1024)
	req := models.RequestData{Body: padding + " UNION SELECT secret"}

	got := engine.Inspect(req)
	assert.Empty(t, got)

	// Same payload inside the cap is found.
	req = models.RequestData{Body: "UNION SELECT secret " + padding}
	got = engine.Inspect(req)
	require.Len(t, got, 1)
	assert.Equal(t, models.CategorySQLInjection, got[0].Category)
}

func TestParsePack_Rejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty pack", `categories: []`},
		{
			"unknown category",
			`
categories:
  - category: VOODOO
    code: "X"
    severity: HIGH
    confidence: 0.9
    patterns: ["x"]
`,
		},
		{
			"bad severity",
			`
categories:
  - category: XSS
    code: "A03:2021"
    severity: EXTREME
    confidence: 0.9
    patterns: ["x"]
`,
		},
		{
			"bad confidence",
			`
categories:
  - category: XSS
    code: "A03:2021"
    severity: HIGH
    confidence: 1.5
    patterns: ["x"]
`,
		},
		{
			"invalid regex",
			`
categories:
  - category: XSS
    code: "A03:2021"
    severity: HIGH
    confidence: 0.9
    patterns: ["(unclosed"]
`,
		},
		{
			"duplicate category",
			`
categories:
  - category: XSS
    code: "A03:2021"
    severity: HIGH
    confidence: 0.9
    patterns: ["a"]
  - category: XSS
    code: "A03:2021"
    severity: HIGH
    confidence: 0.9
    patterns: ["b"]
`,
		},
		{
			"no patterns",
			`
categories:
  - category: XSS
    code: "A03:2021"
    severity: HIGH
    confidence: 0.9
    patterns: []
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePack([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParsePack_EmbeddedDefault(t *testing.T) {
	pack, err := ParsePack(defaultPack)
	require.NoError(t, err)
	assert.Len(t, pack.Categories, 6)
	assert.NotEmpty(t, pack.ScannerUAs)
}
