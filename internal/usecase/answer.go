package usecase

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"abstractrag/internal/domain"
	"abstractrag/internal/port"
)

//go:embed templates/*.txt
var promptTemplates embed.FS

var answerTemplate = template.Must(
	template.New("answer_prompt.txt").
		Funcs(template.FuncMap{"formatContext": formatContext}).
		ParseFS(promptTemplates, "templates/answer_prompt.txt"),
)

// PromptData is the input of the answer prompt template.
type PromptData struct {
	Query     string
	Documents []domain.Document
}

// AnswerUseCase retrieves context for a question and asks the LLM to answer it.
type AnswerUseCase struct {
	retrieve *RetrieveUseCase
	llm      port.LLM
	logger   *slog.Logger
}

func NewAnswerUseCase(retrieve *RetrieveUseCase, llm port.LLM, logger *slog.Logger) *AnswerUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerUseCase{
		retrieve: retrieve,
		llm:      llm,
		logger:   logger,
	}
}

func (u *AnswerUseCase) Answer(ctx context.Context, query string, topK int) (domain.Answer, error) {
	docs, err := u.retrieve.Retrieve(ctx, query, topK)
	if err != nil {
		return domain.Answer{}, err
	}

	prompt, err := BuildPrompt(query, docs)
	if err != nil {
		return domain.Answer{}, err
	}

	text, err := u.llm.Generate(ctx, prompt)
	if err != nil {
		if !errors.Is(err, domain.ErrGeneration) {
			err = fmt.Errorf("%w: %v", domain.ErrGeneration, err)
		}
		return domain.Answer{}, fmt.Errorf("failed to generate answer: %w", err)
	}

	u.logger.Info("answer generated", "model", u.llm.ModelName(), "context_docs", len(docs))
	return domain.Answer{
		Text:    strings.TrimSpace(text),
		Context: docs,
	}, nil
}

// BuildPrompt renders the question-answering prompt for query and docs.
func BuildPrompt(query string, docs []domain.Document) (string, error) {
	var buf bytes.Buffer
	if err := answerTemplate.Execute(&buf, PromptData{Query: query, Documents: docs}); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}

func formatContext(docs []domain.Document) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = fmt.Sprintf("Title: %s\nAbstract: %s", d.Title, d.Abstract)
	}
	return strings.Join(parts, "\n\n")
}
