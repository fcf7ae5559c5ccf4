package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"hzbot/internal/app/connector/local"
	"hzbot/internal/pkg/errs"
	"hzbot/internal/pkg/limiter"
	"hzbot/internal/pkg/logx"
	"hzbot/internal/pkg/randx"
	"hzbot/internal/pkg/resp"
)

// MaxNicknameLength bounds the nickname query parameter.
const MaxNicknameLength = 32

// HandleWebSocket upgrades a request to a local chat room connection.
//
// Query parameters: "nn" is the nickname, "cid" an optional client id (a session id
// string) that lets a reconnecting tab replace its previous connection.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r.RemoteAddr)

		roomCode := chi.URLParam(r, "code")
		room, customErr := deps.Local.GetOrCreateRoom(roomCode)
		if customErr != nil {
			logx.Warn("WebSocket request rejected: invalid room", "room_code", roomCode)
			resp.RespondError(w, r, customErr)
			return
		}
		if room.IsFull() {
			logx.Info("WebSocket connection rejected: Room is full.", "room_code", roomCode)
			resp.RespondError(w, r, errs.NewError(errs.ErrRoomIsFull))
			return
		}

		query := r.URL.Query()
		nickname := query.Get("nn")
		if nickname == "" || len(nickname) > MaxNicknameLength {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		clientID := query.Get("cid")
		if !randx.IsValidSessionID(clientID) {
			id, err := randx.SessionID()
			if err != nil {
				resp.RespondError(w, r, err)
				return
			}
			clientID = id
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := deps.Local.NewClient(room, conn, local.Participant{ID: clientID, Nickname: nickname}, ip)

		go client.WritePump()

		logx.Info("WebSocket connection established", "client_id", clientID, "room_code", roomCode, "ip", logx.AnonymizeIP(ip))

		if !room.RegisterClient(client) {
			_ = conn.Close()
			return
		}

		client.ReadPump()
	}
}
