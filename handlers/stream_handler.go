package handlers

import (
	"net/http"

	"sbb/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamHandler upgrades connections and subscribes them to hub topics.
type StreamHandler struct {
	hub          *services.Hub
	forumService *services.ForumService
}

func NewStreamHandler(hub *services.Hub, forumService *services.ForumService) *StreamHandler {
	return &StreamHandler{
		hub:          hub,
		forumService: forumService,
	}
}

func (h *StreamHandler) Feed(c *gin.Context) {
	h.subscribe(c, services.FeedTopic)
}

// Question subscribes to the events of one existing question.
func (h *StreamHandler) Question(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if _, err := h.forumService.GetQuestion(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	h.subscribe(c, services.QuestionTopic(id))
}

func (h *StreamHandler) subscribe(c *gin.Context, topic string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the error response.
		c.Error(err)
		return
	}

	h.hub.RegisterClient(conn, topic)
}
