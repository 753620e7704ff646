package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wet-coach-go/internal/model"
)

func dialChat(t *testing.T, srv *httptest.Server, tok string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/" + tok
	return websocket.DefaultDialer.Dial(url, nil)
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestChatWebSocketRunsTurn(t *testing.T) {
	s := newTestServer(t, map[string]int{"user": 10})
	tok := s.login(t, "wendy", model.RoleUser)
	srv := httptest.NewServer(s.r)
	defer srv.Close()

	conn, _, err := dialChat(t, srv, tok)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "bogus"}))
	frame := readFrame(t, conn)
	assert.Equal(t, "rejected", frame["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":           "turn",
		"conversationId": "ws-1",
		"text":           "How are you feeling today?",
	}))

	var types []string
	var text strings.Builder
	for {
		frame := readFrame(t, conn)
		typ, _ := frame["type"].(string)
		types = append(types, typ)
		if typ == "delta" {
			text.WriteString(frame["text"].(string))
		}
		if typ == "end" || typ == "rejected" {
			break
		}
	}
	assert.Equal(t, []string{"delta", "delta", "done", "note", "end"}, types)
	assert.Equal(t, "I guess I'm fine.", text.String())

	notes, err := s.noteRepo.ListByConversation(context.Background(), "ws-1")
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func TestChatWebSocketRejectsInvalidToken(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.r)
	defer srv.Close()

	_, resp, err := dialChat(t, srv, "not-a-token")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
