package fewshot

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Scope partitions the example store: the shared global pool or one user's
// personal pool. User scopes materialize lazily on first write; an absent
// scope is not an error, it simply yields zero examples.
type Scope string

const ScopeGlobal Scope = "global"

func UserScope(userID uint64) Scope {
	return Scope("user:" + strconv.FormatUint(userID, 10))
}

// Record is one stored example. Identity is a content hash of the question
// text, so re-adding an identical question overwrites deterministically.
// The embedding model name is stored alongside the vector: changing the
// model must not silently mix vector spaces, so searches only consider rows
// embedded with the active model.
type Record struct {
	ID         string    `gorm:"primaryKey;size:64" json:"id"`
	Scope      string    `gorm:"primaryKey;size:64;index" json:"scope"`
	Question   string    `gorm:"type:text;not null" json:"question"`
	Decision   string    `gorm:"type:text;not null" json:"decision"`
	EmbedModel string    `gorm:"type:varchar(128);not null" json:"embed_model"`
	Vector     string    `gorm:"type:text;not null" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Record) TableName() string { return "few_shot_examples" }

// ContentID derives the example identity from the question text.
func ContentID(question string) string {
	sum := sha256.Sum256([]byte(question))
	return hex.EncodeToString(sum[:])
}
