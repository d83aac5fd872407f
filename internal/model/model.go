package model

import (
	"context"
	"io"
	"time"
)

// ExamSettings holds the exam parameters a teacher fills in before generating
// a paper. Values are interpolated into prompts as-is; beyond the form-level
// minimums nothing is validated here.
type ExamSettings struct {
	Topic           string `json:"topic"`
	ClassName       string `json:"class_name"`
	Board           string `json:"board"`
	StudentName     string `json:"student_name,omitempty"`
	Language        string `json:"language"`
	TotalMarks      int    `json:"total_marks"`
	DurationMinutes int    `json:"duration_minutes"`
	MCQCount        int    `json:"mcq_count"`
	ShortCount      int    `json:"short_count"`
	LongCount       int    `json:"long_count"`
}

// DefaultSettings returns the settings a fresh session starts with.
func DefaultSettings() ExamSettings {
	return ExamSettings{
		Topic:           "General",
		ClassName:       "Grade 10",
		Board:           "CBSE",
		Language:        "English",
		TotalMarks:      80,
		DurationMinutes: 180,
		MCQCount:        10,
		ShortCount:      5,
		LongCount:       3,
	}
}

// UploadedImage is one textbook page image as received from the client.
// It lives only for the duration of a single generation request.
type UploadedImage struct {
	Name     string
	MimeType string
	Data     io.Reader
}

// EncodedImagePart is the unit sent in a multimodal analysis request:
// a complete base64 transcription of the image bytes plus its MIME type.
// No data-URL prefix is included.
type EncodedImagePart struct {
	MimeType string
	Data     string
}

// GeneratedExam is the raw formatted text returned by the composition stage.
// The content is opaque; it is not parsed into Question records.
type GeneratedExam struct {
	Content string `json:"content"`
}

// QuestionType classifies exam questions.
type QuestionType string

const (
	QuestionMCQ   QuestionType = "mcq"
	QuestionShort QuestionType = "short"
	QuestionLong  QuestionType = "long"
)

// Question is the structured shape a parsed exam question would take.
// The current pipeline returns the composed paper as opaque text and never
// populates this type; it documents the target shape for a future parser.
type Question struct {
	Type          QuestionType `json:"type"`
	Text          string       `json:"text"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer,omitempty"`
	Marks         int          `json:"marks"`
}

// GenerationStatus tracks where a generation attempt is in its pipeline.
type GenerationStatus string

const (
	GenerationPending   GenerationStatus = "pending"
	GenerationEncoding  GenerationStatus = "encoding"
	GenerationAnalyzing GenerationStatus = "analyzing"
	GenerationComposing GenerationStatus = "composing"
	GenerationDone      GenerationStatus = "done"
	GenerationFailed    GenerationStatus = "failed"
)

// GenerationRecord is the persisted audit entry for one generation attempt.
// It records the settings, timing, and outcome. The generated exam content
// itself is deliberately never stored.
type GenerationRecord struct {
	ID          string           `json:"id"`
	Settings    ExamSettings     `json:"settings"`
	ImageCount  int              `json:"image_count"`
	Status      GenerationStatus `json:"status"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	Lang          string // UI label language served to the frontend
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	AuthRequired  bool   // Gate the API behind a login when a password is set
	HistoryLimit  int    // Max entries returned by the history endpoint
}

// User represents a system user.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}
