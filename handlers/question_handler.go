package handlers

import (
	"net/http"
	"time"

	"sbb/services"

	"github.com/gin-gonic/gin"
)

type QuestionHandler struct {
	forumService *services.ForumService
}

func NewQuestionHandler(forumService *services.ForumService) *QuestionHandler {
	return &QuestionHandler{
		forumService: forumService,
	}
}

type QuestionRequest struct {
	Subject string `json:"subject"`
	Content string `json:"content"`
}

func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	questions, err := h.forumService.ListQuestions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, questions)
}

func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	question, err := h.forumService.GetQuestion(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	question, err := h.forumService.CreateQuestion(c.Request.Context(), req.Subject, req.Content, time.Time{})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, question)
}

func (h *QuestionHandler) UpdateQuestion(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	question, err := h.forumService.UpdateQuestion(c.Request.Context(), id, req.Subject, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

func (h *QuestionHandler) DeleteQuestion(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.forumService.DeleteQuestion(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Question deleted successfully"})
}
