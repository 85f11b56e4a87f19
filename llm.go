package germ

import (
	"context"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
)

// SearchTerms is the structured output an LLM adapter is expected to
// return when asked to pull search terms out of a free-text message,
// matching motleycoder's repo_map_from_message contract.
type SearchTerms struct {
	Strings []string `json:"strings" jsonschema:"description=Words or short phrases from the message worth biasing the repo map's ranking towards"`
}

// searchTermsSchema is computed once; reflecting the same type always
// produces the same schema, so there's no reason to redo it per call.
var searchTermsSchema = jsonschema.Reflect(&SearchTerms{})

// LLMStructuredOutputter is the minimal contract `RepoMapFromMessage`
// needs from an LLM client: given a prompt and a JSON schema the
// response must conform to, return the decoded result. The prompt
// template and the client's actual wire protocol are out of scope;
// only this call shape is part of germ's surface.
type LLMStructuredOutputter interface {
	ExtractSearchTerms(ctx context.Context, message string, schema *jsonschema.Schema) (SearchTerms, error)
}

// RepoMapFromMessage asks outputter to pull search terms out of
// message, then renders a repo map biased towards whatever it
// extracted, matching motleycoder's repo_map_from_message.
func (r *RepoMap) RepoMapFromMessage(
	ctx context.Context,
	outputter LLMStructuredOutputter,
	message string,
	otherFiles []string,
	mentionedFnames, mentionedIdents map[string]struct{},
) (string, error) {
	terms, err := outputter.ExtractSearchTerms(ctx, message, searchTermsSchema)
	if err != nil {
		return "", fmt.Errorf("extracting search terms: %w", err)
	}

	searchTerms := make(map[string]struct{}, len(terms.Strings))
	for _, s := range terms.Strings {
		if s != "" {
			searchTerms[s] = struct{}{}
		}
	}

	if mentionedFnames == nil {
		mentionedFnames = make(map[string]struct{})
	}
	if mentionedIdents == nil {
		mentionedIdents = make(map[string]struct{})
	}

	allFnames := uniqueElements(nil, otherFiles)
	allTags := r.getTagsFromFiles(allFnames)
	if len(allTags) == 0 {
		return "", nil
	}

	codeMap := make(map[string]string, len(allFnames))
	for _, fname := range allFnames {
		if b, err := os.ReadFile(fname); err == nil {
			codeMap[fname] = string(b)
		}
	}

	tg := BuildTagGraph(allTags, codeMap)
	defGraph := OnlyDefs(tg)
	ranked := RankTagsNew(defGraph, RepoMapArgs{
		MentionedFnames: mentionedFnames,
		MentionedIdents: mentionedIdents,
		SearchTerms:     searchTerms,
	}, r.diffusionMult)

	entries := make([]RankedEntry, len(ranked))
	for i, t := range ranked {
		entries[i] = RankedEntry{Tag: t}
	}

	renderer := NewRenderer(codeMap)
	render := func(n int) string {
		if n > len(entries) {
			n = len(entries)
		}
		var tags []*Tag
		for _, e := range entries[:n] {
			if e.Tag != nil {
				tags = append(tags, e.Tag)
			}
		}
		return renderer.ToTree(tags)
	}

	return findBestTagTree(entries, r.maxMapTokens, r.TokenCount, render), nil
}
