package composer

import (
	"strings"
	"testing"

	"github.com/mnemo-dev/mnemo/internal/types"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, EstimateTokens(""))
	require.Equal(t, 1, EstimateTokens("a"))
	require.Equal(t, int(12), EstimateTokens(strings.Repeat("a", 40)))
}

func TestEstimateTokensCapped(t *testing.T) {
	huge := strings.Repeat("a", 1_000_000)
	require.Equal(t, 100000, EstimateTokens(huge))
}

func TestDedupKeyNormalizesWhitespace(t *testing.T) {
	k1 := DedupKey("hello   world", "a.go")
	k2 := DedupKey("hello\nworld", "a.go")
	require.Equal(t, k1, k2)
}

func TestDedupKeyDiffersBySource(t *testing.T) {
	k1 := DedupKey("same content", "a.go")
	k2 := DedupKey("same content", "b.go")
	require.NotEqual(t, k1, k2)
}

func TestComposeRespectsGlobalLimit(t *testing.T) {
	var items []types.ContextItem
	for i := 0; i < 20; i++ {
		items = append(items, types.ContextItem{
			Kind: types.KindChunk, Content: strings.Repeat("x", 2000), Source: "file.go",
			TokenCost: 600, UtilityScore: 1.0,
		})
	}
	_, report := Compose(items, ProfileLight, "gpt-4o-mini", DefaultPrices)
	require.LessOrEqual(t, report.CurrentTokens, ProfileLight.GlobalLimit)
}

func TestComposeTruncatesOversizedChunk(t *testing.T) {
	big := strings.Repeat("y", 10000)
	items := []types.ContextItem{
		{Kind: types.KindChunk, Content: big, Source: "a.go", TokenCost: EstimateTokens(big), UtilityScore: 1.0},
	}
	text, report := Compose(items, ProfileDefault, "gpt-4o-mini", DefaultPrices)
	require.Contains(t, text, "[TRIMMED]")
	require.LessOrEqual(t, report.CurrentTokens, ProfileDefault.ChunkHardCap)
}

func TestComposeFileMaxChunksEnforced(t *testing.T) {
	var items []types.ContextItem
	for i := 0; i < 6; i++ {
		items = append(items, types.ContextItem{
			Kind: types.KindChunk, Content: "small chunk content here", Source: "same_file.go",
			TokenCost: 50, UtilityScore: float64(6 - i), DedupKey: DedupKey("small chunk content here", "same_file.go") + string(rune('0'+i)),
		})
	}
	_, report := Compose(items, ProfileDefault, "gpt-4o-mini", DefaultPrices)
	require.LessOrEqual(t, report.CurrentTokens, ProfileDefault.FileMaxChunks*50)
}

func TestComposeRaisedCapForDocsPath(t *testing.T) {
	var items []types.ContextItem
	for i := 0; i < 6; i++ {
		items = append(items, types.ContextItem{
			Kind: types.KindChunk, Content: "doc content here", Source: "docs/guide.md",
			TokenCost: 50, UtilityScore: float64(6 - i), DedupKey: DedupKey("doc content", "docs/guide.md") + string(rune('0'+i)),
		})
	}
	admitted, _ := admit(items, ProfileDefault)
	require.Len(t, admitted, 6, "docs/ path should raise file_max_chunks above the default 3")
}

func TestComposeAuditNamesRejectedItems(t *testing.T) {
	var items []types.ContextItem
	for i := 0; i < 50; i++ {
		items = append(items, types.ContextItem{
			Kind: types.KindChunk, Content: "pressure chunk", Source: "f" + string(rune('a'+i%26)) + ".go",
			TokenCost: 500, UtilityScore: 1.0, DedupKey: DedupKey("pressure chunk", "f.go") + string(rune('0'+i%10)) + string(rune('a'+i/10)),
		})
	}
	_, report := Compose(items, ProfileDefault, "gpt-4o-mini", DefaultPrices)
	require.LessOrEqual(t, report.CurrentTokens, ProfileDefault.GlobalLimit)
	require.NotEmpty(t, report.Audit)

	sawBudgetOrFileCap := false
	for _, line := range report.Audit {
		if strings.Contains(line, reasonGlobalBudget) || strings.Contains(line, reasonFileChunkCap) || strings.Contains(line, reasonFileTokenCap) {
			sawBudgetOrFileCap = true
		}
	}
	require.True(t, sawBudgetOrFileCap, "rejections under pressure must cite a budget or file-cap reason")
}

func TestComposeEfficiencyReportNeverNegative(t *testing.T) {
	items := []types.ContextItem{
		{Kind: types.KindBriefing, Content: "short briefing", TokenCost: 5, UtilityScore: 9.0},
	}
	_, report := Compose(items, ProfileDefault, "gpt-4o-mini", DefaultPrices)
	require.GreaterOrEqual(t, report.SavedTokens, 0)
	require.GreaterOrEqual(t, report.Efficiency, 0.0)
}

func TestComposeDedupDropsRepeatedItem(t *testing.T) {
	items := []types.ContextItem{
		{Kind: types.KindEntity, Content: "duplicate content", Source: "a.go", TokenCost: 10, UtilityScore: 0.8},
		{Kind: types.KindEntity, Content: "duplicate content", Source: "a.go", TokenCost: 10, UtilityScore: 0.8},
	}
	text, _ := Compose(items, ProfileDefault, "gpt-4o-mini", DefaultPrices)
	require.Equal(t, 1, strings.Count(text, "[ENTITY]"))
}

func TestComposeRenderOrderIsFixed(t *testing.T) {
	items := []types.ContextItem{
		{Kind: types.KindChunk, Content: "chunk body", Source: "a.go", TokenCost: 10, UtilityScore: 5.0},
		{Kind: types.KindBriefing, Content: "briefing body", TokenCost: 5, UtilityScore: 9.0},
	}
	text, _ := Compose(items, ProfileDefault, "gpt-4o-mini", DefaultPrices)
	require.Less(t, strings.Index(text, "briefing body"), strings.Index(text, "chunk body"))
}

func TestDefaultPricesFallback(t *testing.T) {
	require.Equal(t, defaultPricePerMillion, DefaultPrices("some-unknown-model"))
	require.Equal(t, 2.50, DefaultPrices("gpt-4o"))
}
