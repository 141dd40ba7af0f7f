package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"

	"moderation/pkg/models"
	"moderation/pkg/moderation"
)

func TestMain(m *testing.M) {
	log.SetLevel(log.PanicLevel)
	exitCode := m.Run()
	os.Exit(exitCode)
}

// memStore is an in-memory Store for handler tests.
type memStore struct {
	mu       sync.Mutex
	comments []models.Comment
	messages []models.Message
	failing  bool
}

func (s *memStore) CreateComment(c models.Comment) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing {
		return models.Comment{}, fmt.Errorf("storage unavailable")
	}

	id, err := uuid.NewV4()
	if err != nil {
		return models.Comment{}, err
	}
	c.ID = id
	c.Created = time.Now()
	s.comments = append(s.comments, c)

	return c, nil
}

func (s *memStore) ApprovedComments() ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing {
		return nil, fmt.Errorf("storage unavailable")
	}

	var approved []models.Comment
	for i := len(s.comments) - 1; i >= 0; i-- {
		if s.comments[i].Approved {
			approved = append(approved, s.comments[i])
		}
	}
	return approved, nil
}

func (s *memStore) CreateMessage(m models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing {
		return models.Message{}, fmt.Errorf("storage unavailable")
	}

	id, err := uuid.NewV4()
	if err != nil {
		return models.Message{}, err
	}
	m.ID = id
	m.Created = time.Now()
	s.messages = append(s.messages, m)

	return m, nil
}

type fakeVerifier struct {
	accept bool
}

func (f fakeVerifier) Verify(ctx context.Context, token string) (bool, error) {
	return f.accept, nil
}

var testAuthor = models.Author{
	ID:     "108234711123456789012",
	Name:   "John Doe",
	Email:  "john@example.com",
	Avatar: "https://example.com/avatar.png",
}

func testAPI(t *testing.T, db Store, terms ...string) *API {
	t.Helper()

	detector := moderation.NewDetector(moderation.DiceBigram{}, 0.82)
	detector.SetTerms(terms)

	policy, err := moderation.NewPolicy(0.82, 0.92)
	if err != nil {
		t.Fatalf("failed to create policy: %v", err)
	}

	return New(Config{ServiceName: "moderation-test"}, db, detector, policy)
}

func postComment(t *testing.T, api *API, req CommentRequest) *httptest.ResponseRecorder {
	t.Helper()

	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	r := httptest.NewRequest(http.MethodPost, "/comments", bytes.NewReader(b))
	rr := httptest.NewRecorder()
	api.Router().ServeHTTP(rr, r)

	return rr
}

func TestAPI_createCommentPublish(t *testing.T) {
	db := &memStore{}
	api := testAPI(t, db, "tonto")

	rr := postComment(t, api, CommentRequest{Author: testAuthor, Content: "  hola mundo  "})
	if rr.Code != http.StatusOK {
		t.Fatalf("want status code %v, got %v: %s", http.StatusOK, rr.Code, rr.Body.String())
	}

	var resp CommentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Comment == nil {
		t.Fatal("want stored comment in response")
	}
	if resp.Comment.Content != "hola mundo" {
		t.Errorf("want stored content %q, got %q", "hola mundo", resp.Comment.Content)
	}
	if !resp.Comment.Approved {
		t.Error("want published comment approved")
	}

	if len(db.comments) != 1 {
		t.Fatalf("want 1 stored comment, got %d", len(db.comments))
	}
}

func TestAPI_createCommentEscapesContent(t *testing.T) {
	db := &memStore{}
	api := testAPI(t, db, "tonto")

	rr := postComment(t, api, CommentRequest{Author: testAuthor, Content: `me gusta el "cafe" & el te`})
	if rr.Code != http.StatusOK {
		t.Fatalf("want status code %v, got %v: %s", http.StatusOK, rr.Code, rr.Body.String())
	}

	want := "me gusta el &#34;cafe&#34; &amp; el te"
	if got := db.comments[0].Content; got != want {
		t.Errorf("want stored content %q, got %q", want, got)
	}
}

func TestAPI_createCommentRejectLeet(t *testing.T) {
	// Desleeting turns "t0nt0" into an exact substring match.
	db := &memStore{}
	api := testAPI(t, db, "tonto")

	rr := postComment(t, api, CommentRequest{Author: testAuthor, Content: "eres un t0nt0"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("want status code %v, got %v", http.StatusBadRequest, rr.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Error != msgDisallowedTerm {
		t.Errorf("want error %q, got %q", msgDisallowedTerm, resp.Error)
	}

	if len(db.comments) != 0 {
		t.Errorf("rejected submission must not create a record, got %d", len(db.comments))
	}
}

func TestAPI_createCommentRejectInjection(t *testing.T) {
	// The safety screen fires before matching, even with an empty
	// denylist.
	db := &memStore{}
	api := testAPI(t, db)

	rr := postComment(t, api, CommentRequest{Author: testAuthor, Content: `<img src=x onerror=alert(1)>`})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("want status code %v, got %v", http.StatusBadRequest, rr.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Error != msgUnsafeContent {
		t.Errorf("want error %q, got %q", msgUnsafeContent, resp.Error)
	}

	if len(db.comments) != 0 {
		t.Errorf("rejected submission must not create a record, got %d", len(db.comments))
	}
}

func TestAPI_createCommentHold(t *testing.T) {
	// "estupida" scores in the review band against "estupido".
	db := &memStore{}
	api := testAPI(t, db, "estupido")

	rr := postComment(t, api, CommentRequest{Author: testAuthor, Content: "eres estupida"})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("want status code %v, got %v: %s", http.StatusAccepted, rr.Code, rr.Body.String())
	}

	var resp CommentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if !resp.Review {
		t.Error("want review flag set for held comment")
	}

	if len(db.comments) != 1 {
		t.Fatalf("want 1 stored comment, got %d", len(db.comments))
	}
	if db.comments[0].Approved {
		t.Error("held comment must be stored unapproved")
	}
}

func TestAPI_createCommentValidation(t *testing.T) {
	long := make([]byte, MaxSubmitLen+1)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name     string
		req      CommentRequest
		wantCode int
	}{
		{"Missing author", CommentRequest{Content: "hola"}, http.StatusUnauthorized},
		{"Empty content", CommentRequest{Author: testAuthor}, http.StatusBadRequest},
		{"Whitespace content", CommentRequest{Author: testAuthor, Content: "   "}, http.StatusBadRequest},
		{"Oversize content", CommentRequest{Author: testAuthor, Content: string(long)}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &memStore{}
			api := testAPI(t, db, "tonto")

			rr := postComment(t, api, tt.req)
			if rr.Code != tt.wantCode {
				t.Errorf("want status code %v, got %v", tt.wantCode, rr.Code)
			}
			if len(db.comments) != 0 {
				t.Errorf("invalid submission must not create a record, got %d", len(db.comments))
			}
		})
	}
}

func TestAPI_createCommentCaptcha(t *testing.T) {
	db := &memStore{}
	detector := moderation.NewDetector(moderation.DiceBigram{}, 0.82)
	detector.SetTerms([]string{"tonto"})
	policy, err := moderation.NewPolicy(0.82, 0.92)
	if err != nil {
		t.Fatalf("failed to create policy: %v", err)
	}

	api := New(Config{ServiceName: "moderation-test", Verifier: fakeVerifier{accept: false}}, db, detector, policy)
	rr := postComment(t, api, CommentRequest{Author: testAuthor, Content: "hola mundo", Captcha: "token"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("want status code %v for failed captcha, got %v", http.StatusBadRequest, rr.Code)
	}

	api = New(Config{ServiceName: "moderation-test", Verifier: fakeVerifier{accept: true}}, db, detector, policy)
	rr = postComment(t, api, CommentRequest{Author: testAuthor, Content: "hola mundo", Captcha: "token"})
	if rr.Code != http.StatusOK {
		t.Errorf("want status code %v for passing captcha, got %v", http.StatusOK, rr.Code)
	}
}

func TestAPI_createCommentStorageFailure(t *testing.T) {
	db := &memStore{failing: true}
	api := testAPI(t, db, "tonto")

	rr := postComment(t, api, CommentRequest{Author: testAuthor, Content: "hola mundo"})
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("want status code %v when the write fails, got %v", http.StatusInternalServerError, rr.Code)
	}
}

func TestAPI_approvedCommentsHandler(t *testing.T) {
	db := &memStore{}
	api := testAPI(t, db, "tonto")

	if _, err := db.CreateComment(models.Comment{Author: testAuthor, Content: "visible", Approved: true}); err != nil {
		t.Fatalf("failed to seed comment: %v", err)
	}
	if _, err := db.CreateComment(models.Comment{Author: testAuthor, Content: "hidden", Approved: false}); err != nil {
		t.Fatalf("failed to seed comment: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/comments", nil)
	rr := httptest.NewRecorder()
	api.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("want status code %v, got %v", http.StatusOK, rr.Code)
	}

	var got []models.Comment
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 approved comment, got %d", len(got))
	}
	if got[0].Content != "visible" {
		t.Errorf("want content %q, got %q", "visible", got[0].Content)
	}
}

func TestAPI_createMessageHandler(t *testing.T) {
	db := &memStore{}
	api := testAPI(t, db)

	body := func(m MessageRequest) *bytes.Reader {
		b, err := json.Marshal(m)
		if err != nil {
			t.Fatalf("failed to marshal request: %v", err)
		}
		return bytes.NewReader(b)
	}

	req := httptest.NewRequest(http.MethodPost, "/contact", body(MessageRequest{
		Name:    "Alice <admin>",
		Email:   "alice@example.com",
		Message: "Hello there",
	}))
	rr := httptest.NewRecorder()
	api.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("want status code %v, got %v: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	if len(db.messages) != 1 {
		t.Fatalf("want 1 stored message, got %d", len(db.messages))
	}
	if want := "Alice &lt;admin&gt;"; db.messages[0].Name != want {
		t.Errorf("want escaped name %q, got %q", want, db.messages[0].Name)
	}

	req = httptest.NewRequest(http.MethodPost, "/contact", body(MessageRequest{
		Name:    "Bob",
		Email:   "not-an-email",
		Message: "Hi",
	}))
	rr = httptest.NewRecorder()
	api.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("want status code %v for invalid email, got %v", http.StatusBadRequest, rr.Code)
	}
}

func TestAPI_rateLimit(t *testing.T) {
	db := &memStore{}
	detector := moderation.NewDetector(moderation.DiceBigram{}, 0.82)
	policy, err := moderation.NewPolicy(0.82, 0.92)
	if err != nil {
		t.Fatalf("failed to create policy: %v", err)
	}

	api := New(Config{
		ServiceName:     "moderation-test",
		RateLimitMax:    2,
		RateLimitWindow: time.Minute,
	}, db, detector, policy)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/comments", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		rr := httptest.NewRecorder()
		api.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: want status code %v, got %v", i+1, http.StatusOK, rr.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/comments", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	rr := httptest.NewRecorder()
	api.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("want status code %v after limit, got %v", http.StatusTooManyRequests, rr.Code)
	}

	// A different client is unaffected.
	req = httptest.NewRequest(http.MethodGet, "/comments", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.99")
	rr = httptest.NewRecorder()
	api.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("want status code %v for different client, got %v", http.StatusOK, rr.Code)
	}
}
