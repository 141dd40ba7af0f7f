package api

import (
	"time"

	"moderation/pkg/models"
)

type LogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	IP         string    `json:"ip"`
	StatusCode int       `json:"status_code"`
	RequestID  string    `json:"request_id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Duration   float64   `json:"duration_sec"`
	Service    string    `json:"service"`
}

// CommentRequest is the submission payload. The author identity comes
// from the upstream authentication layer; this service only requires
// that it is present.
type CommentRequest struct {
	Author  models.Author `json:"author"`
	Content string        `json:"content"`
	Captcha string        `json:"captcha"`
}

type CommentResponse struct {
	Message string          `json:"message"`
	Review  bool            `json:"review,omitempty"`
	Comment *models.Comment `json:"comment,omitempty"`
}

type MessageRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
