// Package console serves the local control panel for a running call:
// JSON state and controls, chat with rendered markdown, and a websocket
// event feed driving the page live.
package console

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/voxmesh/voxmesh/internal/call"
	"github.com/voxmesh/voxmesh/internal/chat"
	"github.com/voxmesh/voxmesh/internal/media"
	"github.com/voxmesh/voxmesh/internal/state"
	"github.com/voxmesh/voxmesh/internal/storage"
)

// Deps wires the console into the running call.
type Deps struct {
	Call    *call.Call
	Chat    *chat.Manager
	Media   *media.Controller
	DB      *storage.DB
	RoomKey string
}

// Server is the local console. It binds to loopback by default and has
// no auth; it is a per-user control surface, not a public endpoint.
type Server struct {
	deps Deps
	md   goldmark.Markdown
	srv  *http.Server

	mu      sync.Mutex
	clients map[*websocket.Conn]chan event
}

type event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local console only; the page is served from the same address.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Start builds the console and begins serving on addr.
func Start(addr string, deps Deps) (*Server, error) {
	s := &Server{
		deps:    deps,
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
		clients: make(map[*websocket.Conn]chan event),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/roster", s.handleRoster)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/mute", s.handleMute)
	mux.HandleFunc("/api/deafen", s.handleDeafen)
	mux.HandleFunc("/api/share", s.handleShare)
	mux.HandleFunc("/api/hangup", s.handleHangup)
	mux.HandleFunc("/api/recent", s.handleRecent)
	mux.HandleFunc("/ws", s.handleWS)

	s.srv = &http.Server{Addr: addr, Handler: mux}

	s.wireEvents()

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("CONSOLE: serve: %v", err)
		}
	}()
	log.Printf("CONSOLE: listening on http://%s", addr)
	return s, nil
}

// Close stops the HTTP server and drops all websocket clients.
func (s *Server) Close() error {
	s.mu.Lock()
	for conn, ch := range s.clients {
		close(ch)
		delete(s.clients, conn)
	}
	s.mu.Unlock()
	return s.srv.Close()
}

// wireEvents forwards call, roster, chat, and share activity onto the
// websocket feed.
func (s *Server) wireEvents() {
	s.deps.Call.OnPhase(func(p call.Phase) {
		s.broadcast(event{Type: "phase", Data: p.String()})
	})
	s.deps.Chat.OnMessage(func(m chat.Message) {
		s.broadcast(event{Type: "chat", Data: s.renderMessage(m)})
	})
	s.deps.Chat.OnGameState(func(u chat.GameUpdate) {
		s.broadcast(event{Type: "game", Data: u})
	})
	s.deps.Media.Share().OnChange(func(from string, track *webrtc.TrackRemote) {
		data := map[string]any{"from": from, "active": track != nil}
		if from != "" {
			if p, ok := s.deps.Call.Roster().Get(from); ok {
				data["label"] = p.Label
			}
		}
		s.broadcast(event{Type: "share", Data: data})
	})

	ch := s.deps.Call.Roster().Subscribe()
	go func() {
		for evt := range ch {
			s.broadcast(event{Type: "roster", Data: map[string]any{
				"event":       string(evt.Type),
				"participant": evt.Participant,
			}})
		}
	}()
}

func (s *Server) broadcast(e event) {
	s.mu.Lock()
	for _, ch := range s.clients {
		select {
		case ch <- e:
		default:
			// Slow client, drop the event rather than the call loop.
		}
	}
	s.mu.Unlock()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ch := make(chan event, 64)
	s.mu.Lock()
	s.clients[conn] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if _, ok := s.clients[conn]; ok {
			close(ch)
			delete(s.clients, conn)
		}
		s.mu.Unlock()
		conn.Close()
	}()

	// Reader exists only to notice the client going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for e := range ch {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}
}

type renderedMessage struct {
	ID    string        `json:"id"`
	From  string        `json:"from"`
	Label string        `json:"label"`
	Body  string        `json:"body"`
	HTML  template.HTML `json:"html"`
	TS    time.Time     `json:"ts"`
	Own   bool          `json:"own"`
}

func (s *Server) renderMessage(m chat.Message) renderedMessage {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(m.Body), &buf); err != nil {
		buf.Reset()
		buf.WriteString(template.HTMLEscapeString(m.Body))
	}
	return renderedMessage{
		ID:    m.ID,
		From:  m.From,
		Label: m.Label,
		Body:  m.Body,
		HTML:  template.HTML(buf.String()),
		TS:    m.TS,
		Own:   m.Own,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	c := s.deps.Call
	shareFrom, shareTrack := s.deps.Media.Share().Current()
	writeJSON(w, map[string]any{
		"room":        s.deps.RoomKey,
		"self":        c.Self(),
		"phase":       c.Phase().String(),
		"duration_ms": c.Duration().Milliseconds(),
		"muted":       c.Muted(),
		"deafened":    c.Deafened(),
		"sessions":    c.Sessions(),
		"sharing":     s.deps.Media.Screen() != nil,
		"inbound_share": map[string]any{
			"from":   shareFrom,
			"active": shareTrack != nil,
		},
	})
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Call.Roster().Snapshot()
	out := make([]state.Participant, 0, len(snap))
	for _, p := range snap {
		out = append(out, p)
	}
	writeJSON(w, out)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		history := s.deps.Chat.History()
		out := make([]renderedMessage, 0, len(history))
		for _, m := range history {
			out = append(out, s.renderMessage(m))
		}
		writeJSON(w, out)
	case http.MethodPost:
		var req struct {
			Body string `json:"body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Body == "" {
			http.Error(w, "body required", http.StatusBadRequest)
			return
		}
		msg, err := s.deps.Chat.Send(req.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, s.renderMessage(msg))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) toggleBody(r *http.Request) (bool, error) {
	var req struct {
		On bool `json:"on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return false, err
	}
	return req.On, nil
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	on, err := s.toggleBody(r)
	if err != nil {
		http.Error(w, "on required", http.StatusBadRequest)
		return
	}
	s.deps.Call.SetMuted(on)
	writeJSON(w, map[string]bool{"muted": on})
}

func (s *Server) handleDeafen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	on, err := s.toggleBody(r)
	if err != nil {
		http.Error(w, "on required", http.StatusBadRequest)
		return
	}
	s.deps.Call.SetDeafened(on)
	writeJSON(w, map[string]bool{"deafened": on})
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	on, err := s.toggleBody(r)
	if err != nil {
		http.Error(w, "on required", http.StatusBadRequest)
		return
	}
	if on {
		if err := s.deps.Call.StartShare(); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
	} else {
		s.deps.Call.StopShare()
	}
	writeJSON(w, map[string]bool{"sharing": on})
}

func (s *Server) handleHangup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.deps.Call.Hangup()
	writeJSON(w, map[string]string{"phase": s.deps.Call.Phase().String()})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB == nil {
		writeJSON(w, []storage.Profile{})
		return
	}
	profiles, err := s.deps.DB.RecentProfiles(50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, profiles)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = indexTmpl.Execute(w, map[string]any{
		"Room": s.deps.RoomKey,
		"Self": s.deps.Call.Self(),
	})
}
