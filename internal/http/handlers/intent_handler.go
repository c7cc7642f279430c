package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-intent-chat/internal/intent"
)

// IntentView is the public shape of a catalog entry.
type IntentView struct {
	Name                string  `json:"name" example:"greeting"`
	DisplayName         string  `json:"displayName" example:"Greeting"`
	Description         string  `json:"description" example:"Hello, hi, good morning"`
	Category            string  `json:"category" example:"social"`
	Color               string  `json:"color" example:"#3b82f6"`
	ConfidenceThreshold float64 `json:"confidenceThreshold" example:"0.7"`
}

// ListIntentsResponse lists the intent catalog.
type ListIntentsResponse struct {
	Intents []IntentView `json:"intents"`
}

// ClassifyRequest carries the text to classify.
type ClassifyRequest struct {
	Text string `json:"text" binding:"required" example:"Hi! How are you?"`
}

// ListIntents godoc
// @ID          listIntents
// @Summary     List intents
// @Description Returns the intent catalog used by the classifier.
// @Tags        Intents
// @Produce     json
// @Success     200  {object}  handlers.ListIntentsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /intents [get]
func (h *Handlers) ListIntents(c *gin.Context) {
	rows, err := h.intents.Intents(c.Request.Context())
	if err != nil {
		writeServiceError(c, err, h.opts.HideForeign)
		return
	}
	out := make([]IntentView, 0, len(rows))
	for _, r := range rows {
		out = append(out, IntentView{
			Name:                r.Name,
			DisplayName:         intent.DisplayName(r.Name),
			Description:         r.Description,
			Category:            r.Category,
			Color:               r.Color,
			ConfidenceThreshold: r.ConfidenceThreshold,
		})
	}
	ok(c, http.StatusOK, ListIntentsResponse{Intents: out})
}

// Classify godoc
// @ID          classifyIntent
// @Summary     Classify text
// @Description Returns the intent label and confidence for a piece of text without storing anything.
// @Tags        Intents
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.ClassifyRequest  true  "Text"
// @Success     200   {object}  intent.Result
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401   {object}  handlers.ErrorResponse  "Not authenticated"
// @Router      /intents/classify [post]
func (h *Handlers) Classify(c *gin.Context) {
	var req ClassifyRequest
	if !bindJSON(c, &req, false) {
		return
	}
	res, err := h.replies.Classify(c.Request.Context(), req.Text)
	if err != nil {
		writeServiceError(c, err, h.opts.HideForeign)
		return
	}
	ok(c, http.StatusOK, res)
}

// Ping godoc
// @ID          ping
// @Summary     Ping
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.MessageResponse
// @Router      /ping [get]
func (h *Handlers) Ping(c *gin.Context) {
	ok(c, http.StatusOK, MessageResponse{Message: h.opts.PingMessage})
}
