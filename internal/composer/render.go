package composer

import (
	"fmt"
	"strings"

	"github.com/mnemo-dev/mnemo/internal/types"
)

// RenderPointer formats a Pointer per spec.md §4.9 step 4: "file (Lines:
// a-b) / Section / Keywords / Confidence". Called by internal/engine
// before handing a pointer into the Composer as a ContextItem, since
// Pointer itself carries no Content field.
func RenderPointer(p types.Pointer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (Lines: %d-%d)", p.FilePath, p.StartLine, p.EndLine)
	if p.SectionTitle != "" {
		fmt.Fprintf(&b, "\nSection: %s", p.SectionTitle)
	}
	if len(p.Keywords) > 0 {
		fmt.Fprintf(&b, "\nKeywords: %s", strings.Join(p.Keywords, ", "))
	}
	fmt.Fprintf(&b, "\nConfidence: %.2f", p.Confidence)
	return b.String()
}
