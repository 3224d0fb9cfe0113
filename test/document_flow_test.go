package test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

const refundPolicyText = "Refund policy. Premium plan refunds are processed within thirty days " +
	"of purchase. Each refund is matched against the original payment before approval. " +
	"Setup fees are never refunded."

// Upload, ask, and get an answer grounded in the uploaded chunk, with the
// provenance pointing back at the file and character span.
func TestDocumentGroundedAnswer(t *testing.T) {
	stack := newRagStack(t, stackConfig())
	stack.uploadDocument(t, "refund-policy.txt", refundPolicyText)

	stack.gateway.queueIntent(retrievalVerdict())
	stack.gateway.queueAnswer("Premium refunds are processed within thirty days; setup fees are excluded.")

	resp := stack.chat(t, "what does the policy say about premium refunds?", "")
	assert.Equal(t, "Premium refunds are processed within thirty days; setup fees are excluded.", resp.Answer)

	require.NotEmpty(t, resp.Sources)
	source := resp.Sources[0]
	assert.Equal(t, models.SourceTypeDocument, source.Type)
	assert.Equal(t, "refund-policy.txt", source.FileName)
	assert.True(t, strings.HasPrefix(source.Location, "chars "), source.Location)
	assert.Contains(t, source.Excerpt, "Refund policy")
	assert.Greater(t, source.RelevanceScore, 0.0)

	calls := stack.gateway.textCalls("")
	require.Len(t, calls, 2, "document turns are one classification plus one synthesis")
	synthesis := calls[1]
	assert.Equal(t, "answer", synthesis.Kind)
	assert.True(t, strings.HasPrefix(synthesis.System, "You are a retrieval assistant. Answer the question"))
	assert.Contains(t, synthesis.Prompt, "=== Sources ===")
	assert.Contains(t, synthesis.Prompt, "thirty days")

	t.Run("turn sources are persisted with the session", func(t *testing.T) {
		w := stack.getJSON(t, "/api/chat/sessions/"+resp.SessionID)
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)

		turns := body["sources"].([]any)
		require.Len(t, turns, 1)
		persisted := turns[0].([]any)[0].(map[string]any)
		assert.Equal(t, "refund-policy.txt", persisted["fileName"])
	})
}

// Re-uploading identical bytes must return the already-stored document
// instead of creating a second one.
func TestDuplicateUploadReturnsExistingDocument(t *testing.T) {
	stack := newRagStack(t, stackConfig())

	first := stack.uploadDocument(t, "refund-policy.txt", refundPolicyText)
	second := stack.uploadDocument(t, "policy-copy.txt", refundPolicyText)

	assert.Equal(t, first["id"], second["id"])
	assert.Equal(t, "refund-policy.txt", second["fileName"],
		"the duplicate keeps the original upload's identity")

	w := stack.getJSON(t, "/api/documents")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decodeBody(t, w)["total"])
}

func TestDocumentEndpointsRoundTrip(t *testing.T) {
	stack := newRagStack(t, stackConfig())
	created := stack.uploadDocument(t, "handbook.md", refundPolicyText)
	id := created["id"].(string)

	t.Run("listing includes the upload", func(t *testing.T) {
		w := stack.getJSON(t, "/api/documents")
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, float64(1), body["total"])
		docs := body["documents"].([]any)
		require.Len(t, docs, 1)
		assert.Equal(t, "handbook.md", docs[0].(map[string]any)["fileName"])
	})

	t.Run("chunks carry offsets into the original text", func(t *testing.T) {
		w := stack.getJSON(t, "/api/documents/"+id+"/chunks")
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		require.GreaterOrEqual(t, body["count"].(float64), float64(1))

		chunk := body["chunks"].([]any)[0].(map[string]any)
		assert.Equal(t, float64(0), chunk["startPosition"])
		assert.Greater(t, chunk["endPosition"].(float64), float64(0))
	})

	t.Run("delete removes the document", func(t *testing.T) {
		w := stack.do(t, http.MethodDelete, "/api/documents/"+id, nil, "")
		require.Equal(t, http.StatusOK, w.Code)

		w = stack.getJSON(t, "/api/documents/"+id)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

// Files the parser registry cannot handle are rejected as skips: the
// client learns why, and nothing is stored.
func TestUnsupportedUploadIsSkipped(t *testing.T) {
	stack := newRagStack(t, stackConfig())

	w := stack.tryUpload(t, "firmware.bin", "\x00\x01\x02")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Contains(t, decodeBody(t, w)["details"], "unsupported file type")

	w = stack.getJSON(t, "/api/documents")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decodeBody(t, w)["total"])
}

// An empty store is not an error: the synthesizer still answers, just
// without sources.
func TestQuestionWithNoDocumentsStillAnswers(t *testing.T) {
	stack := newRagStack(t, stackConfig())
	stack.gateway.queueIntent(retrievalVerdict())
	stack.gateway.queueAnswer("Nothing has been uploaded yet.")

	resp := stack.chat(t, "summarize the uploaded contracts", "")
	assert.Equal(t, "Nothing has been uploaded yet.", resp.Answer)
	assert.Empty(t, resp.Sources)
}
