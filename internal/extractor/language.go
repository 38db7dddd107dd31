package extractor

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"
)

// grammars maps a fence language tag to the tree-sitter grammar that can
// confirm it actually parses as that language. Only a small, high-value
// subset is wired; anything else falls back to the fence's own tag.
var grammars = map[string]*sitter.Language{
	"go":     golang.GetLanguage(),
	"golang": golang.GetLanguage(),
	"py":     python.GetLanguage(),
	"python": python.GetLanguage(),
}

// ConfirmLanguage re-validates a fenced code block's declared language
// tag by attempting a tree-sitter parse. The tag itself is never
// changed (mislabeling is common in developer notes and guessing a
// replacement is worse than keeping the author's label), but the
// boolean return distinguishes a grammar that parsed cleanly from one
// that errored or wasn't recognized at all — callers use it as a
// confidence signal, not a hard gate, matching spec.md's "best-effort"
// extraction contract.
func ConfirmLanguage(declaredTag, body string) (tag string, confirmed bool) {
	grammar, ok := grammars[declaredTag]
	if !ok {
		return declaredTag, false
	}

	parser := sitter.NewParser()
	parser.SetLanguage(grammar)
	tree, err := parser.ParseCtx(context.Background(), nil, []byte(body))
	if err != nil || tree == nil {
		return declaredTag, false
	}
	defer tree.Close()

	if tree.RootNode().HasError() {
		return declaredTag, false
	}
	return declaredTag, true
}
