package database

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringList is a []string stored as a JSON array in a TEXT column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
	return json.Unmarshal(data, (*[]string)(l))
}

// BotConfig is the stored configuration of a bot.
type BotConfig struct {
	ID              string        `db:"id"`
	Name            string        `db:"name"`
	DefaultLanguage string        `db:"default_language"`
	Languages       StringList    `db:"languages"`
	NLUSeed         sql.NullInt64 `db:"nlu_seed"`
	CreatedAt       time.Time     `db:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at"`
}

// StoredModel is a trained model artifact. ID is the string form of the
// model's content-derived identifier.
type StoredModel struct {
	ID          string    `db:"id"`
	BotID       string    `db:"bot_id"`
	Language    string    `db:"language"`
	ContentHash string    `db:"content_hash"`
	SpecHash    string    `db:"spec_hash"`
	Seed        int       `db:"seed"`
	Artifact    []byte    `db:"artifact"`
	StartedAt   time.Time `db:"started_at"`
	FinishedAt  time.Time `db:"finished_at"`
	CreatedAt   time.Time `db:"created_at"`
}

// TrainingSession is the persisted state of the training of one bot language.
type TrainingSession struct {
	ID        string    `db:"id"`
	BotID     string    `db:"bot_id"`
	Language  string    `db:"language"`
	Status    string    `db:"status"`
	Progress  float64   `db:"progress"`
	Error     string    `db:"error"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
