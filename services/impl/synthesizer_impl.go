package impl

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/byerlikaya/SmartRAG-sub014/models"
	"github.com/byerlikaya/SmartRAG-sub014/services"
	"github.com/byerlikaya/SmartRAG-sub014/services/storage"
)

const sourceExcerptRunes = 200

// missingDataMarkers trigger the extraction retry: the model claimed the
// sources lack the answer while chunks were in fact supplied.
var missingDataMarkers = []string{
	"i don't have",
	"i do not have",
	"no information",
	"not contain",
	"does not mention",
	"not mentioned",
	"cannot find",
	"can't find",
	"not available in",
	"no relevant",
	"not found in the",
}

// answerSynthesizerImpl builds the grounded prompt for whichever contexts
// are present, generates the answer, and assembles provenance.
type answerSynthesizerImpl struct {
	gateway services.AIGateway
	store   storage.DocumentStore
	logger  *zap.Logger
}

func NewAnswerSynthesizer(gateway services.AIGateway, store storage.DocumentStore, logger *zap.Logger) services.AnswerSynthesizer {
	return &answerSynthesizerImpl{gateway: gateway, store: store, logger: logger}
}

func (s *answerSynthesizerImpl) Synthesize(ctx context.Context, req services.SynthesisRequest) (*models.RagResponse, error) {
	hasDocs := len(req.DocumentChunks) > 0
	hasDB := strings.TrimSpace(req.DatabaseContext) != ""

	var prompt, system string
	switch {
	case hasDocs && hasDB:
		prompt, system = s.hybridMergePrompt(req)
	case hasDocs || hasDB:
		prompt, system = s.documentRagPrompt(req)
	default:
		prompt, system = s.conversationPrompt(req)
	}
	system += languageInstruction(req.PreferredLanguage)

	answer, err := s.gateway.GenerateText(ctx, services.TextRequest{
		Prompt:        prompt,
		SystemMessage: system,
		History:       req.History,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	if hasDocs && claimsMissingData(answer) {
		s.logger.Info("answer claimed missing data with sources present, retrying in extraction mode",
			zap.Int("chunks", len(req.DocumentChunks)))
		retry, retryErr := s.gateway.GenerateText(ctx, services.TextRequest{
			Prompt:        prompt,
			SystemMessage: extractionSystemMessage + languageInstruction(req.PreferredLanguage),
			History:       req.History,
		})
		if retryErr != nil {
			s.logger.Warn("extraction retry failed, keeping first answer", zap.Error(retryErr))
		} else {
			answer = retry
		}
	}

	sources := s.assembleSources(ctx, req)
	models.SortSources(sources)

	return &models.RagResponse{
		Query:      req.Query,
		Answer:     strings.TrimSpace(answer),
		Sources:    sources,
		SearchedAt: time.Now().UTC(),
		Configuration: models.RagConfiguration{
			AIProvider:      s.gateway.ProviderName(),
			StorageProvider: s.store.Name(),
			Model:           s.gateway.ModelName(),
		},
		SearchMetadata: req.SearchMetadata,
	}, nil
}

const (
	documentRagSystemMessage = "You are a retrieval assistant. Answer the question using only the sources provided. " +
		"Cite nothing beyond them and keep the answer concise. " +
		"If the sources truly do not contain the answer, say so briefly."

	hybridMergeSystemMessage = "You are a retrieval assistant. Combine the database results and the document excerpts " +
		"into a single coherent answer. Prefer database numbers for figures and documents for explanations. " +
		"Do not invent values that appear in neither section."

	conversationSystemMessage = "You are a friendly assistant for a document and database search service. " +
		"Reply briefly and naturally."

	extractionSystemMessage = "You are a retrieval assistant in extraction mode. The answer is present in the sources. " +
		"Quote or closely paraphrase the matching passages and name the source section each fact came from. " +
		"Do not claim the information is missing."
)

func (s *answerSynthesizerImpl) documentRagPrompt(req services.SynthesisRequest) (string, string) {
	var b strings.Builder
	b.WriteString("Answer the question using only the sources below.\n")
	if len(req.DocumentChunks) > 0 {
		b.WriteString("\n=== Sources ===\n")
		writeChunkSections(&b, req.DocumentChunks)
	}
	if strings.TrimSpace(req.DatabaseContext) != "" {
		b.WriteString("\n=== Database results ===\n")
		b.WriteString(req.DatabaseContext)
		b.WriteString("\n")
	}
	writeMcpSection(&b, req.McpContext)
	fmt.Fprintf(&b, "\nQuestion: %s\n", req.Query)
	return b.String(), documentRagSystemMessage
}

func (s *answerSynthesizerImpl) hybridMergePrompt(req services.SynthesisRequest) (string, string) {
	var b strings.Builder
	b.WriteString("Answer the question by merging the two labeled sections below.\n")
	b.WriteString("\n=== Database results ===\n")
	b.WriteString(req.DatabaseContext)
	b.WriteString("\n\n=== Document excerpts ===\n")
	writeChunkSections(&b, req.DocumentChunks)
	writeMcpSection(&b, req.McpContext)
	fmt.Fprintf(&b, "\nQuestion: %s\n", req.Query)
	return b.String(), hybridMergeSystemMessage
}

func (s *answerSynthesizerImpl) conversationPrompt(req services.SynthesisRequest) (string, string) {
	return req.Query, conversationSystemMessage
}

func writeChunkSections(b *strings.Builder, chunks []models.DocumentChunk) {
	for i, chunk := range chunks {
		fmt.Fprintf(b, "[%d]\n%s\n\n", i+1, strings.TrimSpace(chunk.Content))
	}
}

func writeMcpSection(b *strings.Builder, mcpContext string) {
	if strings.TrimSpace(mcpContext) == "" {
		return
	}
	b.WriteString("\n=== Tool results ===\n")
	b.WriteString(mcpContext)
	b.WriteString("\n")
}

func languageInstruction(preferred string) string {
	if preferred == "" {
		return " Respond in the language of the question."
	}
	return fmt.Sprintf(" Respond in the language with ISO 639-1 code %q.", preferred)
}

func claimsMissingData(answer string) bool {
	lower := strings.ToLower(answer)
	for _, marker := range missingDataMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// assembleSources emits one record per contributing chunk plus the database
// sections the coordinator already described. File names are resolved once
// per document; a failed lookup leaves the name empty rather than failing
// the answer.
func (s *answerSynthesizerImpl) assembleSources(ctx context.Context, req services.SynthesisRequest) []models.Source {
	sources := make([]models.Source, 0, len(req.DocumentChunks)+len(req.DatabaseSources))

	fileNames := make(map[uuid.UUID]string, 4)
	for _, chunk := range req.DocumentChunks {
		name, ok := fileNames[chunk.DocumentID]
		if !ok {
			if doc, err := s.store.GetByID(ctx, chunk.DocumentID); err == nil {
				name = doc.FileName
			}
			fileNames[chunk.DocumentID] = name
		}
		sources = append(sources, models.Source{
			Type:           models.SourceTypeDocument,
			RelevanceScore: chunk.RelevanceScore,
			Excerpt:        excerpt(chunk.Content),
			Location:       fmt.Sprintf("chars %d-%d", chunk.StartPosition, chunk.EndPosition),
			DocumentID:     chunk.DocumentID,
			FileName:       name,
			ChunkIndex:     chunk.ChunkIndex,
			StartPosition:  chunk.StartPosition,
			EndPosition:    chunk.EndPosition,
		})
	}

	sources = append(sources, req.DatabaseSources...)
	return sources
}

func excerpt(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= sourceExcerptRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:sourceExcerptRunes-3]) + "..."
}
