package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"goldenbookAPI/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type SearchHandler struct {
	discoveryService *services.DiscoveryService
}

func NewSearchHandler(discoveryService *services.DiscoveryService) *SearchHandler {
	return &SearchHandler{
		discoveryService: discoveryService,
	}
}

// LiveSearch upgrades to a websocket that streams suggestions for a session
// as the user types.
func (h *SearchHandler) LiveSearch(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	// Fail before upgrading so the app gets a proper status code.
	if _, err := h.discoveryService.GetSession(sessionID, false); err != nil {
		respondWithServiceError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Could not upgrade connection")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	client, err := h.discoveryService.NewSearchClient(ctx, sessionID, conn)
	if err != nil {
		log.WithError(err).Warnf("Search socket for session %s refused", sessionID)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
