package chat

import (
	"time"

	"github.com/datachat/datachat/internal/synthesis"
)

type Chat struct {
	ID        string    `gorm:"primaryKey;size:26" json:"id"`
	Title     string    `gorm:"type:varchar(100);not null" json:"title"`
	UserID    uint64    `gorm:"index;not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Chat) TableName() string { return "chats" }

// Turn is one question/answer exchange. Append-only and ordered by ID
// within a chat; the only in-place mutation is a negative-feedback
// regeneration, which rewrites the response and decision fields while
// keeping identity and creation time.
type Turn struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID       string `gorm:"size:26;index;not null" json:"chat_id"`
	UserID       uint64 `gorm:"index;not null" json:"-"`
	Question     string `gorm:"type:text;not null" json:"question"`
	Response     string `gorm:"type:text;not null" json:"response"`
	ResponseKind string `gorm:"type:varchar(16);not null" json:"response_kind"`

	// The structured decision, flattened.
	RelevanceScore    int    `gorm:"not null" json:"relevance_score"`
	Executable        string `gorm:"type:varchar(8);not null" json:"executable"`
	SQLQuery          string `gorm:"column:sql_query;type:text;not null" json:"sql_query"`
	AsksAboutLocation string `gorm:"type:varchar(8);not null" json:"asks_about_location"`
	Visualization     string `gorm:"type:varchar(32);not null" json:"visualization_kind"`

	CreatedAt time.Time `json:"created_at"`
}

func (Turn) TableName() string { return "conversation_turns" }

func (t *Turn) Decision() synthesis.Decision {
	return synthesis.Decision{
		RelevanceScore:    t.RelevanceScore,
		Executable:        t.Executable,
		SQL:               t.SQLQuery,
		AsksAboutLocation: t.AsksAboutLocation,
		Visualization:     synthesis.Visualization(t.Visualization),
	}
}

func (t *Turn) SetDecision(d synthesis.Decision) {
	t.RelevanceScore = d.RelevanceScore
	t.Executable = d.Executable
	t.SQLQuery = d.SQL
	t.AsksAboutLocation = d.AsksAboutLocation
	t.Visualization = string(d.Visualization)
}

type FeedbackType string

const (
	FeedbackPositive FeedbackType = "positive"
	FeedbackNegative FeedbackType = "negative"
	FeedbackNone     FeedbackType = "none"
)

type Feedback struct {
	ID        uint64       `gorm:"primaryKey;autoIncrement" json:"id"`
	TurnID    uint64       `gorm:"index;not null" json:"turn_id"`
	Type      FeedbackType `gorm:"type:varchar(10);not null;default:none" json:"type"`
	Comment   string       `gorm:"type:text" json:"comment"`
	CreatedAt time.Time    `json:"created_at"`
}

func (Feedback) TableName() string { return "turn_feedback" }
