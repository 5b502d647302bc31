package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// We use 'db' tags for sqlx to map snake_case columns to our Go fields and
// 'json' tags for the camelCase API bodies.

type Role string

const (
	RoleUser    Role = "user"
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleCreator, RoleAdmin:
		return true
	}
	return false
}

type ContestStatus string

const (
	StatusPending  ContestStatus = "pending"
	StatusApproved ContestStatus = "approved"
	StatusRejected ContestStatus = "rejected"
)

func (s ContestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// User is a registered account. Email is the unique key.
type User struct {
	Email        string    `db:"email" json:"email"`
	DisplayName  string    `db:"display_name" json:"displayName"`
	PhotoURL     string    `db:"photo_url" json:"photoURL"`
	Bio          string    `db:"bio" json:"bio"`
	Role         Role      `db:"role" json:"role"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// Participant is one enrollment entry embedded in a contest.
type Participant struct {
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	EnrolledAt time.Time `json:"enrolledAt"`
}

// Participants is stored as a JSONB array.
type Participants []Participant

func (p Participants) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p)
}

func (p *Participants) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*p = Participants{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("participants: unsupported column type")
	}
	return json.Unmarshal(data, p)
}

// Contains reports whether email is already enrolled (case-insensitive).
func (p Participants) Contains(email string) bool {
	for _, x := range p {
		if strings.EqualFold(x.Email, email) {
			return true
		}
	}
	return false
}

// WinnerInfo is the winner embedded in a contest. An empty Email means no
// winner has been declared.
type WinnerInfo struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	PhotoURL string `json:"photoURL"`
}

func (w WinnerInfo) Declared() bool {
	return w.Email != ""
}

// Contest owns its participant list and winner.
type Contest struct {
	ID                string          `db:"id" json:"id"`
	CreatorEmail      string          `db:"creator_email" json:"creatorEmail"`
	Name              string          `db:"name" json:"name"`
	Description       string          `db:"description" json:"description"`
	Type              string          `db:"type" json:"type"`
	Image             string          `db:"image" json:"image"`
	Instructions      string          `db:"instructions" json:"instructions"`
	EntryFee          decimal.Decimal `db:"entry_fee" json:"entryFee"`
	PrizeMoney        decimal.Decimal `db:"prize_money" json:"prizeMoney"`
	Deadline          time.Time       `db:"deadline" json:"deadline"`
	Status            ContestStatus   `db:"status" json:"status"`
	IsEnded           bool            `db:"is_ended" json:"isEnded"`
	Participants      Participants    `db:"participants" json:"participants"`
	ParticipantsCount int             `db:"participants_count" json:"participantsCount"`
	Winner            WinnerInfo      `db:"-" json:"winner"`
	CreatedAt         time.Time       `db:"created_at" json:"createdAt"`
}

// ContestFields are the mutable display fields of a contest.
type ContestFields struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Type         string          `json:"type"`
	Image        string          `json:"image"`
	Instructions string          `json:"instructions"`
	EntryFee     decimal.Decimal `json:"entryFee"`
	PrizeMoney   decimal.Decimal `json:"prizeMoney"`
	Deadline     time.Time       `json:"deadline"`
}

// Payment is one settled checkout. TransactionID is unique.
type Payment struct {
	ID            string    `db:"id" json:"id"`
	CustomerEmail string    `db:"customer_email" json:"customerEmail"`
	ContestID     string    `db:"contest_id" json:"contestId"`
	Currency      string    `db:"currency" json:"currency"`
	TransactionID string    `db:"transaction_id" json:"transactionId"`
	PaidAt        time.Time `db:"paid_at" json:"paidAt"`
}

// Submission is at most one per (ContestID, ParticipantEmail).
// ContestIsEnded mirrors the contest and is only re-synced by SetEnded.
type Submission struct {
	ID               string    `db:"id" json:"id"`
	ContestID        string    `db:"contest_id" json:"contestId"`
	ParticipantEmail string    `db:"participant_email" json:"participantEmail"`
	Content          string    `db:"content" json:"content"`
	IsPaid           bool      `db:"is_paid" json:"isPaid"`
	ContestIsEnded   bool      `db:"contest_is_ended" json:"contestIsEnded"`
	SubmittedAt      time.Time `db:"submitted_at" json:"submittedAt"`
}

// Winner is the append-only audit row written when a contest winner is declared.
type Winner struct {
	ID          string          `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Email       string          `db:"email" json:"email"`
	PhotoURL    string          `db:"photo_url" json:"photoURL"`
	ContestID   string          `db:"contest_id" json:"contestId"`
	ContestName string          `db:"contest_name" json:"contestName"`
	PrizeMoney  decimal.Decimal `db:"prize_money" json:"prizeMoney"`
	DeclaredAt  time.Time       `db:"declared_at" json:"declaredAt"`
}

type LeaderboardEntry struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photoURL"`
	TotalWins   int    `json:"totalWins"`
}

type WinStats struct {
	ParticipatedCount int     `json:"participatedCount"`
	WonCount          int     `json:"wonCount"`
	WinPercentage     float64 `json:"winPercentage"`
}
