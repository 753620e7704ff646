package es

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSearchQuery_FiltersAndText(t *testing.T) {
	uid := uint(7)
	q := BuildSearchQuery(NoteQuery{UserID: &uid, Text: "rapport", Priority: "red"})

	b, err := json.Marshal(q)
	require.NoError(t, err)
	s := string(b)
	assert.Contains(t, s, `"multi_match"`)
	assert.Contains(t, s, `"query":"rapport"`)
	assert.Contains(t, s, `{"term":{"user_id":7}}`)
	assert.Contains(t, s, `{"term":{"priority":"red"}}`)
	assert.Equal(t, 20, q["size"])
}

func TestBuildSearchQuery_EmptyTextMatchesAll(t *testing.T) {
	q := BuildSearchQuery(NoteQuery{Size: 5})
	b, err := json.Marshal(q)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"match_all"`)
	assert.NotContains(t, string(b), `"filter"`)
	assert.Equal(t, 5, q["size"])
}

func newFakeES(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

func TestNoteIndex_IndexNote(t *testing.T) {
	var path, body string
	client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	err := NewNoteIndex(client, "consultant_notes").IndexNote(context.Background(), NoteDocument{
		NoteID: 12, ConversationID: "c1", Title: "Stay present", Priority: "green", CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "/consultant_notes/_doc/12", path)
	assert.Contains(t, body, `"title":"Stay present"`)
}

func TestNoteIndex_Search(t *testing.T) {
	client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/consultant_notes/_search"))
		_, _ = w.Write([]byte(`{"hits":{"hits":[
			{"_score":2.5,"_source":{"note_id":3,"conversation_id":"c1","user_id":7,"title":"A","priority":"red"}},
			{"_score":1.0,"_source":{"note_id":9,"conversation_id":"c2","user_id":7,"title":"B","priority":"red"}}
		]}}`))
	})

	uid := uint(7)
	hits, err := NewNoteIndex(client, "consultant_notes").Search(context.Background(), NoteQuery{UserID: &uid, Text: "a"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, uint(3), hits[0].NoteID)
	assert.InDelta(t, 2.5, hits[0].Score, 1e-9)
	assert.Equal(t, "c2", hits[1].ConversationID)
}

func TestNoteIndex_SearchError(t *testing.T) {
	client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad query"}`))
	})

	_, err := NewNoteIndex(client, "consultant_notes").Search(context.Background(), NoteQuery{})
	assert.Error(t, err)
}
