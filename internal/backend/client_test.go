package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"docchat/internal/model"
)

func TestQuerySendsBearerAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/query/", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "doc-1", body["document_id"])
		require.Equal(t, "what?", body["user_query"])
		require.Equal(t, "standard", body["intelligence_mode"])
		_, hasSession := body["session_id"]
		require.False(t, hasSession)
		_, hasGrounding := body["grounding_mode"]
		require.False(t, hasGrounding)

		w.Write([]byte("data: {\"chunk\":\"hi\"}\n"))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	body, err := c.Query(context.Background(), "tok", QueryRequest{
		Target:    model.Target{DocumentID: "doc-1"},
		UserQuery: "what?",
	})
	require.NoError(t, err)
	defer body.Close()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, "data: {\"chunk\":\"hi\"}\n", string(raw))
}

func TestQueryErrorBodies(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		target  error
		message string
	}{
		{"feature locked", 403, `{"detail":{"error":"feature_locked","message":"Upgrade to use deep mode"}}`, ErrFeatureLocked, "Upgrade to use deep mode"},
		{"query limit", 429, `{"detail":{"error":"query_limit_exceeded"}}`, ErrQueryLimitExceeded, DefaultFailureMessage},
		{"message limit", 429, `{"detail":{"error":"message_limit_exceeded","message":"out"}}`, ErrMessageLimitExceeded, "out"},
		{"string detail", 500, `{"detail":"index offline"}`, nil, "index offline"},
		{"garbage", 502, `<html>bad gateway</html>`, nil, DefaultFailureMessage},
		{"unauthorized", 401, `{"detail":{"message":"expired"}}`, ErrUnauthorized, "expired"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			body, err := NewClient(server.URL).Query(context.Background(), "tok", QueryRequest{
				Target:    model.Target{SessionID: "s-1"},
				UserQuery: "q",
			})
			require.Nil(t, body)
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			require.Equal(t, tc.status, apiErr.StatusCode)
			require.Equal(t, tc.message, UserMessage(err))
			if tc.target != nil {
				require.ErrorIs(t, err, tc.target)
			}
		})
	}
}

func TestQueryRejectsAmbiguousTarget(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	_, err := c.Query(context.Background(), "tok", QueryRequest{
		Target: model.Target{DocumentID: "a", SessionID: "b"},
	})
	require.Error(t, err)
}

func TestIsQuotaExceeded(t *testing.T) {
	require.True(t, IsQuotaExceeded(&APIError{Code: CodeQueryLimitExceeded}))
	require.True(t, IsQuotaExceeded(&APIError{Code: CodeMessageLimitExceeded}))
	require.False(t, IsQuotaExceeded(&APIError{Code: CodeFeatureLocked}))
	require.False(t, IsQuotaExceeded(errors.New("x")))
}

func TestGetDocumentKeepsRawRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/documents/doc-7", r.URL.Path)
		w.Write([]byte(`{"id":"doc-7","status":"indexing","file_path":"u/doc.pdf","page_count":12}`))
	}))
	defer server.Close()

	doc, err := NewClient(server.URL).GetDocument(context.Background(), "tok", "doc-7")
	require.NoError(t, err)
	require.Equal(t, model.StatusIndexing, doc.Status)
	require.Equal(t, "u/doc.pdf", doc.FilePath)
	require.Contains(t, string(doc.Raw), "page_count")
}

func TestProcessDocument(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/documents/doc-1/process", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	require.NoError(t, NewClient(server.URL).ProcessDocument(context.Background(), "tok", "doc-1"))
	require.True(t, called)
}

func TestGenerateStringAndObjectContent(t *testing.T) {
	responses := []string{
		`{"content":"a short summary"}`,
		`{"content":{"cards":[{"front":"Q","back":"A"}]}}`,
	}
	i := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/generate/", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "doc-1", body["document_id"])
		w.Write([]byte(responses[i]))
		i++
	}))
	defer server.Close()

	c := NewClient(server.URL)
	out, err := c.Generate(context.Background(), "tok", GenerateRequest{
		Target:     model.Target{DocumentID: "doc-1"},
		OutputType: model.OutputSummary,
	})
	require.NoError(t, err)
	require.Equal(t, "a short summary", out.Text())

	out, err = c.Generate(context.Background(), "tok", GenerateRequest{
		Target:     model.Target{DocumentID: "doc-1"},
		OutputType: model.OutputFlashcards,
	})
	require.NoError(t, err)
	require.Contains(t, out.Text(), `"front": "Q"`)
}

func TestGenerateFeatureLocked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail":{"error":"feature_locked"}}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Generate(context.Background(), "tok", GenerateRequest{
		Target:     model.Target{SessionID: "s"},
		OutputType: model.OutputQuiz,
	})
	require.ErrorIs(t, err, ErrFeatureLocked)
}
