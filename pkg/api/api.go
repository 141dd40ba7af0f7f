// Package api exposes the comment moderation pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"moderation/pkg/models"
	"moderation/pkg/moderation"
)

// MaxSubmitLen caps incoming comment length, in runes, before the
// pipeline runs. Stored content is capped separately after escaping.
const MaxSubmitLen = 500

// Stable user-facing rejection messages, one per category. They never
// leak the matched term, the score or which stage triggered detection.
const (
	msgUnsafeContent    = "Content not allowed (possible injection)"
	msgDisallowedTerm   = "Your comment contains language that is not allowed"
	msgDisallowedLikely = "Your comment contains language that is not allowed (variation detected)"
	msgPendingReview    = "Your comment was received and is pending review"
	msgPublished        = "Comment published successfully"
)

// Store is the persistence dependency: an append-only record store
// queryable for approved comments, newest first.
type Store interface {
	CreateComment(models.Comment) (models.Comment, error)
	ApprovedComments() ([]models.Comment, error)
	CreateMessage(models.Message) (models.Message, error)
}

// TokenVerifier is the human-verification dependency, evaluated before
// the moderation pipeline runs.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (bool, error)
}

type API struct {
	ServiceName string

	r        *mux.Router
	db       Store
	detector *moderation.Detector
	policy   moderation.Policy
	verifier TokenVerifier
	limits   *ipLimiters
	kw       *kafka.Writer
}

// Config carries the optional collaborators. A nil Verifier skips the
// captcha check; a nil KafkaWriter disables request log shipping;
// RateLimitMax <= 0 disables rate limiting.
type Config struct {
	ServiceName     string
	Verifier        TokenVerifier
	KafkaWriter     *kafka.Writer
	RateLimitMax    int64
	RateLimitWindow time.Duration
}

func New(cfg Config, db Store, detector *moderation.Detector, policy moderation.Policy) *API {
	api := API{
		ServiceName: cfg.ServiceName,
		r:           mux.NewRouter(),
		db:          db,
		detector:    detector,
		policy:      policy,
		verifier:    cfg.Verifier,
		kw:          cfg.KafkaWriter,
	}
	if cfg.RateLimitMax > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = 15 * time.Minute
		}
		api.limits = newIPLimiters(window, cfg.RateLimitMax)
	}
	api.endpoints()

	return &api
}

func (api *API) Router() *mux.Router {
	return api.r
}

func (api *API) endpoints() {
	api.r.Use(api.requestIDMiddleware)
	api.r.Use(api.headerMiddleware)
	if api.limits != nil {
		api.r.Use(api.rateLimitMiddleware)
	}
	if api.kw != nil {
		api.r.Use(api.loggingMiddleware(api.kw))
	}

	api.r.HandleFunc("/comments", api.createCommentHandler).Methods(http.MethodPost)
	api.r.HandleFunc("/comments", api.approvedCommentsHandler).Methods(http.MethodGet)
	api.r.HandleFunc("/contact", api.createMessageHandler).Methods(http.MethodPost)
}

// createCommentHandler runs the moderation pipeline for one submission:
// input validation, captcha, safety screen, denylist matching, decision
// policy and finally the sanitizing write. Exactly one of
// publish/hold/reject is produced per submission.
func (api *API) createCommentHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	var req CommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		log.Errorf("[createCommentHandler][%s] failed to decode request body: %v", sID, err)
		return
	}
	defer r.Body.Close()

	// Authentication happens upstream; here only presence of the
	// established identity is required.
	if req.Author.ID == "" {
		writeError(w, http.StatusUnauthorized, "You must be signed in to comment")
		log.Debugf("[createCommentHandler][%s] submission without author identity", sID)
		return
	}

	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "Content is required")
		return
	}
	if utf8.RuneCountInString(req.Content) > MaxSubmitLen {
		writeError(w, http.StatusUnprocessableEntity, "Content is too long")
		log.Debugf("[createCommentHandler][%s] oversize submission from author %s", sID, req.Author.ID)
		return
	}

	if api.verifier != nil {
		ok, err := api.verifier.Verify(r.Context(), req.Captcha)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Captcha verification failed")
			log.Errorf("[createCommentHandler][%s] captcha verification error: %v", sID, err)
			return
		}
		if !ok {
			writeError(w, http.StatusBadRequest, "Captcha verification failed")
			log.Debugf("[createCommentHandler][%s] captcha rejected for author %s", sID, req.Author.ID)
			return
		}
	}

	unsafe := moderation.ContainsUnsafeMarkup(req.Content)
	var match *moderation.Match
	if !unsafe {
		match = api.detector.Detect(req.Content)
	}

	decision := api.policy.Decide(unsafe, match)

	switch decision.Outcome {
	case moderation.Reject:
		// Injection hits log separately from denylist hits; the term
		// and score stay in the audit log and are never returned.
		if decision.Reason == moderation.ReasonInjection {
			log.Warnf("[createCommentHandler][%s] rejected (%s) author:%s", sID, decision.Reason, req.Author.ID)
			writeError(w, http.StatusBadRequest, msgUnsafeContent)
			return
		}
		log.Warnf("[createCommentHandler][%s] rejected (%s) author:%s term:%q kind:%s score:%.3f",
			sID, decision.Reason, req.Author.ID, decision.Match.Term, decision.Match.Kind, decision.Match.Score)
		if decision.Reason == moderation.ReasonExactTerm {
			writeError(w, http.StatusBadRequest, msgDisallowedTerm)
		} else {
			writeError(w, http.StatusBadRequest, msgDisallowedLikely)
		}
		return

	case moderation.Hold:
		comment, err := api.storeComment(req, decision)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save comment")
			log.Errorf("[createCommentHandler][%s] failed to store held comment: %v", sID, err)
			return
		}
		log.Infof("[createCommentHandler][%s] held for review author:%s term:%q score:%.3f comment:%v",
			sID, req.Author.ID, decision.Match.Term, decision.Match.Score, comment.ID)
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(CommentResponse{Message: msgPendingReview, Review: true})
		return

	default: // moderation.Publish
		comment, err := api.storeComment(req, decision)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save comment")
			log.Errorf("[createCommentHandler][%s] failed to store comment: %v", sID, err)
			return
		}
		log.Debugf("[createCommentHandler][%s] published comment:%v author:%s", sID, comment.ID, req.Author.ID)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(CommentResponse{Message: msgPublished, Comment: &comment})
	}
}

// storeComment is the sanitizing write: the only path by which
// submitted text reaches persistence. The approval flag is fixed by
// the decision and the write is not retried on failure.
func (api *API) storeComment(req CommentRequest, decision moderation.Decision) (models.Comment, error) {
	return api.db.CreateComment(models.Comment{
		Author:   req.Author,
		Content:  moderation.SanitizeContent(req.Content),
		Approved: decision.Approved(),
	})
}

func (api *API) approvedCommentsHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	comments, err := api.db.ApprovedComments()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve comments")
		log.Errorf("[approvedCommentsHandler][%s] ApprovedComments() returned error: %v", sID, err)
		return
	}
	if comments == nil {
		comments = []models.Comment{}
	}

	if err := json.NewEncoder(w).Encode(comments); err != nil {
		log.Errorf("[approvedCommentsHandler][%s] failed to encode comments: %v", sID, err)
	}
}

func (api *API) createMessageHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		log.Errorf("[createMessageHandler][%s] failed to decode request body: %v", sID, err)
		return
	}
	defer r.Body.Close()

	if req.Name == "" || req.Email == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid email address")
		return
	}

	msg, err := api.db.CreateMessage(models.Message{
		Name:  moderation.SanitizeContent(req.Name),
		Email: req.Email,
		Text:  moderation.SanitizeContent(req.Message),
		IP:    getClientIP(r),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save message")
		log.Errorf("[createMessageHandler][%s] failed to store message: %v", sID, err)
		return
	}

	log.Debugf("[createMessageHandler][%s] stored contact message:%v", sID, msg.ID)
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Message saved successfully"})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

// GetRequestID extracts the request ID from the context.
// It returns the request ID as a string if present, otherwise returns an empty string.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}

// shorten truncates a string to 6 characters if it is longer than 6, appends '...' at the end,
// otherwise it returns the string unchanged.
func shorten(s string) string {
	if len(s) > 6 {
		return s[:6] + "..."
	}
	return s
}
