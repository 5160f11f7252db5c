package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"chatbot-gateway/internal/apperrors"
	"chatbot-gateway/internal/handlers/render"
	"chatbot-gateway/internal/logger"
	"chatbot-gateway/internal/models"
	"chatbot-gateway/internal/openai"
	"chatbot-gateway/internal/service/chat"
)

type chatService interface {
	TextReply(ctx context.Context, message string, history []models.ChatMessage) (chat.Reply, error)
	VisionReply(ctx context.Context, message string, imageData []byte, mimeType string) (chat.ImageReply, error)
}

type ChatHandler struct {
	chat   chatService
	logger logger.Logger
}

func NewChat(chat chatService, l logger.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, logger: l}
}

func (h *ChatHandler) Text() http.Handler {
	type contextMessage struct {
		Role    string `json:"role" validate:"required,oneof=system user assistant"`
		Content string `json:"content" validate:"required"`
	}
	type request struct {
		Message        string           `json:"message" validate:"required,min=1,max=4000"`
		ConversationID string           `json:"conversationId"`
		Context        []contextMessage `json:"context" validate:"omitempty,max=50,dive"`
	}
	type response struct {
		Reply          string           `json:"reply"`
		Usage          models.ChatUsage `json:"usage"`
		ConversationID string           `json:"conversationId,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		history := make([]models.ChatMessage, 0, len(data.Context))
		for _, m := range data.Context {
			history = append(history, models.ChatMessage{Role: m.Role, Content: m.Content})
		}

		reply, err := h.chat.TextReply(r.Context(), data.Message, history)
		if err != nil {
			h.renderChatError(w, err)
			return
		}

		render.JSON(w, response{
			Reply:          reply.Text,
			Usage:          reply.Usage,
			ConversationID: data.ConversationID,
		})
	})
}

func (h *ChatHandler) Multimodal() http.Handler {
	type response struct {
		Reply          string           `json:"reply"`
		Usage          models.ChatUsage `json:"usage"`
		ImageProcessed bool             `json:"imageProcessed"`
		CompressedSize int              `json:"compressedSize"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(chat.MaxUploadBytes); err != nil {
			render.ServiceError(w, "Invalid multipart form", http.StatusBadRequest)
			return
		}

		message := r.FormValue("message")
		if message == "" {
			render.ServiceError(w, "Message field is required", http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("image")
		if err != nil {
			render.ServiceError(w, "Image file is required (field name: 'image')", http.StatusBadRequest)
			return
		}
		defer file.Close() // nolint:errcheck

		imageData, err := io.ReadAll(io.LimitReader(file, chat.MaxUploadBytes+1))
		if err != nil {
			render.ServiceError(w, "Failed to read image file", http.StatusBadRequest)
			return
		}

		reply, err := h.chat.VisionReply(r.Context(), message, imageData, header.Header.Get("Content-Type"))
		if err != nil {
			h.renderChatError(w, err)
			return
		}

		render.JSON(w, response{
			Reply:          reply.Text,
			Usage:          reply.Usage,
			ImageProcessed: true,
			CompressedSize: reply.CompressedSize,
		})
	})
}

// renderChatError maps chat validation failures to 400 and upstream API
// failures to their transport status, everything else stays a 500
func (h *ChatHandler) renderChatError(w http.ResponseWriter, err error) {
	var apiErr *openai.APIError

	switch {
	case errors.Is(err, apperrors.ErrMessageTooLong),
		errors.Is(err, apperrors.ErrContextTooLong),
		errors.Is(err, apperrors.ErrImageUnsupported),
		errors.Is(err, apperrors.ErrImageTooLarge):
		render.ServiceError(w, err.Error(), http.StatusBadRequest)

	case errors.As(err, &apiErr):
		h.renderUpstreamError(w, apiErr)

	default:
		h.logger.Error("chat request failed", "error", err.Error())
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *ChatHandler) renderUpstreamError(w http.ResponseWriter, apiErr *openai.APIError) {
	h.logger.Warn("upstream API error", "status", apiErr.StatusCode, "message", apiErr.Message)

	switch apiErr.StatusCode {
	case http.StatusTooManyRequests:
		if apiErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(apiErr.RetryAfter.Seconds())))
		}
		render.ServiceError(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
	case http.StatusBadRequest:
		render.ServiceError(w, "Invalid request to AI service. Please check your input.", http.StatusBadRequest)
	case http.StatusUnauthorized:
		render.ServiceError(w, "AI service authentication failed. Please check API configuration.", http.StatusUnauthorized)
	case http.StatusServiceUnavailable:
		render.ServiceError(w, "AI service temporarily unavailable. Please try again later.", http.StatusServiceUnavailable)
	default:
		render.ServiceError(w, "AI service error", http.StatusBadGateway)
	}
}

// decodeBody decodes an optional JSON body, an empty body is not an error
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
