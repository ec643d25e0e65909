package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/buildownai/buddy/internal/config"
	"github.com/buildownai/buddy/internal/knowledge"
	"github.com/buildownai/buddy/internal/llm"
	"github.com/buildownai/buddy/internal/llm/assist"
)

// GetContext answers a question from the indexed knowledge of the project.
// The question is embedded, the closest file descriptions are collected into
// a context block and the chat model extracts the answer from it. When the
// retrieved context cannot answer, the FAIL sentinel is passed through so
// the model knows to try something else.
func GetContext(ks *knowledge.Store, embedder llm.Embedder, as *assist.Assistant, cfg config.Config, projectID, branch string) Tool {
	return Tool{
		Name:        "get_context",
		Description: "Search the indexed project knowledge and answer a question about the codebase. Returns FAIL when the indexed knowledge cannot answer.",
		Schema: Schema{
			Required: []string{"question"},
			Properties: map[string]Property{
				"question": {Type: "string", Description: "The question about the project to answer from the indexed knowledge"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			question := stringArg(args, "question", "")
			vecs, err := embedder.Embeddings(ctx, cfg.LLM.EmbeddingModel, []string{knowledge.QueryPrefix + question})
			if err != nil {
				return "", err
			}
			if len(vecs) == 0 {
				return "", fmt.Errorf("empty query embedding")
			}
			hits, err := ks.Search(ctx, projectID, vecs[0], branch, cfg.Retrieval.MaxResults, cfg.Retrieval.ScoreThreshold)
			if err != nil {
				return "", err
			}
			if len(hits) == 0 {
				return assist.FailSentinel, nil
			}
			var sb strings.Builder
			for _, h := range hits {
				fmt.Fprintf(&sb, "## Source file %s\n\n%s\n\n", h.File, h.PageContent)
			}
			return as.AnswerFromContext(ctx, question, sb.String())
		},
	}
}
