package api

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/classchat/classchat/internal/server"
	"github.com/classchat/classchat/internal/types"
	"github.com/gorilla/websocket"
)

func (s *ChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *ChatApp) healthz(w http.ResponseWriter, _ *http.Request) {
	if err := s.store.Ping(); err != nil {
		s.log.Println("health check:", err)
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

// serveWs upgrades the connection and registers it with the chat
// server. Identity and initial room are read from the query string; the
// identity is whatever the client claims it is.
func (s *ChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	room := r.URL.Query().Get("room")
	if room == "" {
		room = s.defaultRoom
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	// a failed arrival leaves the connection unregisterable, so close
	// it rather than keep a half-set-up session
	id, err := s.sid.Generate()
	if err != nil {
		s.log.Println("generate connection id:", err)
		conn.Close()
		return
	}

	client := server.NewClient(id, types.User{Username: username}, room, conn, s.cs, s.log)

	s.cs.Register(client)
	go client.Write()
	go client.Read()
}
