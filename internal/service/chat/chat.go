package chat

import (
	"context"
	"fmt"

	"chatbot-gateway/internal/apperrors"
	"chatbot-gateway/internal/models"
	"chatbot-gateway/internal/openai"
)

const (
	defaultMaxMessageLength = 4000
	defaultMaxContextLength = 8000

	textSystemPrompt   = "You are a helpful AI assistant."
	visionSystemPrompt = "You are a helpful AI assistant that can see images."
)

// Completer is the upstream chat completion API
type Completer interface {
	Complete(ctx context.Context, msgs []openai.Message) (openai.Completion, error)
}

type Config struct {
	// Limits for one message and the whole carried context
	// If not set than default is used
	MaxMessageLength int
	MaxContextLength int
}

type Service struct {
	// Text and vision requests may talk to different models
	text   Completer
	vision Completer

	maxMessageLength int
	maxContextLength int
}

func NewService(cfg Config, text Completer, vision Completer) *Service {
	if cfg.MaxMessageLength == 0 {
		cfg.MaxMessageLength = defaultMaxMessageLength
	}
	if cfg.MaxContextLength == 0 {
		cfg.MaxContextLength = defaultMaxContextLength
	}
	if vision == nil {
		vision = text
	}

	return &Service{
		text:             text,
		vision:           vision,
		maxMessageLength: cfg.MaxMessageLength,
		maxContextLength: cfg.MaxContextLength,
	}
}

type Reply struct {
	Text  string
	Usage models.ChatUsage
}

type ImageReply struct {
	Reply

	// Size in bytes of the recompressed image that was sent upstream
	CompressedSize int
}

// TextReply forwards the message with its conversation context upstream
func (s *Service) TextReply(ctx context.Context, message string, history []models.ChatMessage) (Reply, error) {
	if len(message) > s.maxMessageLength {
		return Reply{}, fmt.Errorf("%w: maximum %d characters allowed", apperrors.ErrMessageTooLong, s.maxMessageLength)
	}

	total := 0
	for _, m := range history {
		total += len(m.Content)
	}
	if total > s.maxContextLength {
		return Reply{}, fmt.Errorf("%w: please start a new conversation", apperrors.ErrContextTooLong)
	}

	msgs := make([]openai.Message, 0, len(history)+2)
	msgs = append(msgs, openai.Message{Role: models.ChatRoleSystem, Content: textSystemPrompt})
	for _, m := range history {
		msgs = append(msgs, openai.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, openai.Message{Role: models.ChatRoleUser, Content: message})

	completion, err := s.text.Complete(ctx, msgs)
	if err != nil {
		return Reply{}, err
	}

	return Reply{Text: completion.Reply, Usage: completion.Usage}, nil
}

// VisionReply compresses the image and forwards it with the message upstream
// as an inline base64 data URL
func (s *Service) VisionReply(ctx context.Context, message string, imageData []byte, mimeType string) (ImageReply, error) {
	if len(message) > s.maxMessageLength {
		return ImageReply{}, fmt.Errorf("%w: maximum %d characters allowed", apperrors.ErrMessageTooLong, s.maxMessageLength)
	}

	dataURL, compressedSize, err := compressToDataURL(imageData, mimeType)
	if err != nil {
		return ImageReply{}, err
	}

	msgs := []openai.Message{
		{Role: models.ChatRoleSystem, Content: visionSystemPrompt},
		{Role: models.ChatRoleUser, Content: message, ImageDataURL: dataURL},
	}

	completion, err := s.vision.Complete(ctx, msgs)
	if err != nil {
		return ImageReply{}, err
	}

	return ImageReply{
		Reply:          Reply{Text: completion.Reply, Usage: completion.Usage},
		CompressedSize: compressedSize,
	}, nil
}
