package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"cocreate/internal/config"
	"cocreate/internal/judge"
	"cocreate/internal/protocol"
	"cocreate/internal/session"
	"cocreate/internal/utils"
)

const defaultRoomID = "default-room"

// rejectGrace lets the room_full message flush before the server
// closes the connection.
var rejectGrace = 100 * time.Millisecond

type Handlers struct {
	log    *utils.Logger
	hub    *session.Hub
	runner *judge.Client

	port         string
	env          string
	maxClients   int
	roomIDMaxLen int
}

func NewHandlers(log *utils.Logger, hub *session.Hub, runner *judge.Client, cfg *config.Config) *Handlers {
	return &Handlers{
		log:          log,
		hub:          hub,
		runner:       runner,
		port:         cfg.Port,
		env:          cfg.Env,
		maxClients:   cfg.MaxParticipants,
		roomIDMaxLen: cfg.RoomIDMaxLen,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"port":      h.port,
		"env":       h.env,
	})
}

/*** Sync relay WebSocket ***/

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// SyncWS runs one connection through its lifecycle: admission against
// the room's capacity, initial document offering, frame dispatch, and
// idempotent teardown.
func (h *Handlers) SyncWS(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room")
	if roomID == "" {
		roomID = r.URL.Query().Get("room")
	}
	if roomID == "" {
		roomID = defaultRoomID
	}
	if len(roomID) > h.roomIDMaxLen {
		http.Error(w, "room id too long", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := session.NewClient(conn)

	// A room can be torn down between lookup and join; retry against
	// the successor room.
	var room *session.Room
	for {
		room = h.hub.GetOrCreate(roomID)
		err = room.Join(client)
		if !errors.Is(err, session.ErrRoomClosed) {
			break
		}
	}
	if errors.Is(err, session.ErrRoomFull) {
		h.log.Info("room full, rejecting connection", "room", roomID, "max", h.maxClients)
		_ = conn.WriteMessage(websocket.TextMessage, protocol.RoomFullMessage(h.maxClients))
		time.Sleep(rejectGrace)
		_ = conn.Close()
		return
	}

	h.log.Info("client joined room", "room", roomID, "session", client.ID, "participants", room.ClientCount())

	go client.WritePump()

	// Initial offering: the full document, then the live presence
	// entries if there are any.
	client.Send(room.InitialOffering())
	if snap := room.PresenceSnapshot(); snap != nil {
		client.Send(snap)
	}

	// Teardown must survive duplicate close signals (read error plus
	// explicit close) without double-decrementing the room.
	var teardown sync.Once
	cleanup := func() {
		teardown.Do(func() {
			client.Close()
			left := room.Leave(client)
			if tomb := room.RemovePresence(client); tomb != nil {
				room.Broadcast(client, tomb)
			}
			if left == 0 {
				h.hub.Release(roomID, room)
			}
			h.log.Info("client left room", "room", roomID, "session", client.ID, "participants", left)
		})
	}
	defer cleanup()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		h.dispatch(room, client, data)
	}
}

// dispatch routes one inbound frame. Malformed frames are dropped
// with a diagnostic; they never close the connection.
func (h *Handlers) dispatch(room *session.Room, client *session.Client, data []byte) {
	kind, body, err := protocol.Kind(data)
	if err != nil {
		h.log.Warn("dropping undecodable frame", "room", room.ID, "error", err.Error())
		return
	}
	switch kind {
	case protocol.MessageSync:
		res, err := room.HandleSync(body)
		if err != nil {
			h.log.Warn("dropping invalid sync frame", "room", room.ID, "error", err.Error())
			return
		}
		if res.Reply != nil {
			client.Send(res.Reply)
		}
		if res.Applied {
			room.Broadcast(client, data)
		}
	case protocol.MessagePresence:
		entries, err := protocol.DecodePresence(body)
		if err != nil {
			h.log.Warn("dropping invalid presence frame", "room", room.ID, "error", err.Error())
			return
		}
		room.ApplyPresence(client, entries)
		room.Broadcast(client, data)
	default:
		h.log.Warn("ignoring unknown message kind", "room", room.ID, "kind", kind)
	}
}

/*** Execution proxy (no shared state with the relay) ***/

func (h *Handlers) Execute(w http.ResponseWriter, r *http.Request) {
	var req judge.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" || req.Language == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields: code and language")
		return
	}

	res, err := h.runner.Run(r.Context(), req)
	if err != nil {
		var upstream *judge.UpstreamError
		switch {
		case errors.Is(err, judge.ErrUnsupportedLanguage):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, judge.ErrNoAPIKey):
			writeError(w, http.StatusInternalServerError, err.Error())
		case errors.Is(err, judge.ErrTimeout):
			writeError(w, http.StatusRequestTimeout, err.Error())
		case errors.As(err, &upstream):
			h.log.Error("sandbox request failed", "op", upstream.Op, "status", upstream.Status)
			writeError(w, http.StatusBadGateway, upstream.Error())
		default:
			h.log.Error("code execution error", "error", err.Error())
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
