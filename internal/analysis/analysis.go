// Package analysis implements the proactive-analysis plugin sketched in
// spec.md §9: a post-ingest side task that checks freshly-ingested
// content against existing decisions/facts for contradictions and
// raises a Notification, without ever blocking ingest correctness.
// Grounded on original_source/src/modules/analyst.py's
// ProactiveAnalyst.analyze_ingest and historian.py's
// Historian.find_contradictions prompt shape.
package analysis

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mnemo-dev/mnemo/internal/llm"
	"github.com/mnemo-dev/mnemo/internal/retriever"
	"github.com/mnemo-dev/mnemo/internal/types"
)

// Notification is one proactive suggestion surfaced after ingest.
type Notification struct {
	Type           string // "contradiction"
	File           string
	FilePath       string
	Explanation    string
	Suggestion     string
	ConflictingIDs []string
}

// Analyzer is the interface spec.md §9 calls out: "treat it as an
// out-of-core plugin with a single interface
// analyze_ingest(file_paths, project) -> Notifications".
type Analyzer interface {
	AnalyzeIngest(ctx context.Context, filePaths []string, project string) ([]Notification, error)
}

const briefContentLimit = 5000

// ContradictionAnalyzer is the one concrete Analyzer: it asks the
// Retriever for semantically related decisions/facts, then asks an LLM
// whether the new content contradicts any of them.
type ContradictionAnalyzer struct {
	retriever *retriever.Retriever
	llmc      llm.Client
}

// New builds a ContradictionAnalyzer. llmc may be nil, in which case
// AnalyzeIngest degrades to returning no notifications (matching
// spec.md §7's LLMUnavailable degrade-gracefully contract).
func New(r *retriever.Retriever, llmc llm.Client) *ContradictionAnalyzer {
	return &ContradictionAnalyzer{retriever: r, llmc: llmc}
}

// AnalyzeIngest implements Analyzer. A read or LLM failure for one file
// is logged-equivalent (returned alongside partial results) and never
// aborts the remaining files, mirroring the source's per-file try/except.
func (a *ContradictionAnalyzer) AnalyzeIngest(ctx context.Context, filePaths []string, project string) ([]Notification, error) {
	if a.llmc == nil || !a.llmc.Available(ctx) {
		return nil, nil
	}

	var notifications []Notification
	for _, path := range filePaths {
		data, err := os.ReadFile(path)
		if err != nil || len(strings.TrimSpace(string(data))) == 0 {
			continue
		}
		brief := string(data)
		if len(brief) > briefContentLimit {
			brief = brief[:briefContentLimit]
		}

		resp := a.retriever.Ask(ctx, brief, retriever.Options{Project: project, Limit: 5})
		relevant := relevantKnowledge(resp.Candidates)
		if len(relevant) == 0 {
			continue
		}

		prompt := buildPrompt(brief, relevant)
		answer, err := a.llmc.Hypothesize(ctx, prompt)
		if err != nil {
			continue
		}
		if n, found := parseContradiction(answer, path); found {
			notifications = append(notifications, n)
		}
	}
	return notifications, nil
}

// relevantKnowledge keeps only Entity-method candidates whose content
// reads as a decision or fact, matching the source's type filter.
func relevantKnowledge(cands []types.Candidate) []types.Candidate {
	var out []types.Candidate
	for _, c := range cands {
		for _, m := range c.Method {
			if m == types.MethodEntity {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func buildPrompt(newContent string, knowledge []types.Candidate) string {
	var b strings.Builder
	b.WriteString("You are responsible for keeping a knowledge base consistent.\n")
	b.WriteString("Determine whether the NEW ENTRY contradicts any EXISTING KNOWLEDGE.\n\n")
	fmt.Fprintf(&b, "NEW ENTRY:\n%q\n\n", newContent)
	b.WriteString("EXISTING KNOWLEDGE:\n")
	for _, k := range knowledge {
		fmt.Fprintf(&b, "- [%s] %s\n", k.ID, k.Content)
	}
	b.WriteString("\nReply CONTRADICTION: <explanation> if there is a contradiction, or NONE otherwise.")
	return b.String()
}

// parseContradiction interprets the LLM's free-text answer. The
// prompt's contract ("CONTRADICTION: <explanation>" or "NONE") is
// deliberately simple since the LLM is an injected oracle, not a
// structured-output API (spec.md §1's external-collaborator boundary).
func parseContradiction(answer, path string) (Notification, bool) {
	trimmed := strings.TrimSpace(answer)
	if !strings.HasPrefix(strings.ToUpper(trimmed), "CONTRADICTION") {
		return Notification{}, false
	}
	explanation := trimmed
	if idx := strings.Index(trimmed, ":"); idx >= 0 {
		explanation = strings.TrimSpace(trimmed[idx+1:])
	}
	return Notification{
		Type:        "contradiction",
		File:        fileBase(path),
		FilePath:    path,
		Explanation: explanation,
		Suggestion:  "Review the conflicting entries and ratify or supersede the outdated one.",
	}, true
}

func fileBase(path string) string {
	idx := strings.LastIndexAny(path, `/\`)
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}
