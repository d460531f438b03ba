package store

import (
	"time"

	"github.com/reapbenefit/cmp-backend/internal/transcript"
)

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

type User struct {
	ID              int64     `json:"id"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	IsVerified      bool      `json:"is_verified"`
	Bio             string    `json:"bio"`
	LocationState   string    `json:"location_state"`
	LocationCity    string    `json:"location_city"`
	LocationCountry string    `json:"location_country"`
	Highlight       string    `json:"highlight"`
	ProfilePicture  string    `json:"profile_picture"`
	CreatedAt       time.Time `json:"created_at"`
}

type NewUser struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
}

type ProfileUpdate struct {
	Bio           string `json:"bio"`
	LocationState string `json:"location_state"`
	LocationCity  string `json:"location_city"`
}

type Community struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Link        string `json:"link"`
}

type NewCommunity struct {
	UserID      int64  `json:"user_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Link        string `json:"link"`
}

type Action struct {
	ID          int64     `json:"id"`
	UUID        string    `json:"uuid"`
	UserID      int64     `json:"user_id"`
	UserEmail   string    `json:"-"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	IsVerified  bool      `json:"is_verified"`
	IsPinned    bool      `json:"is_pinned"`
	Category    string    `json:"category"`
	SubCategory string    `json:"subcategory"`
	Type        string    `json:"type"`
	SubType     string    `json:"subtype"`
	CreatedAt   time.Time `json:"created_at"`
}

// ActionUpdate replaces an action's metadata and skills wholesale.
type ActionUpdate struct {
	Title       string
	Description string
	Status      string
	Category    string
	SubCategory string
	Type        string
	SubType     string
	Skills      []ActionSkillInput
}

type ActionSkillInput struct {
	SkillID int64
	Summary string
}

type Skill struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

// ActionSkill is a skill attributed to one action.
type ActionSkill struct {
	Skill
	Summary string `json:"summary"`
}

type NewTurn struct {
	Role         transcript.Role
	Content      string
	ResponseType string
	Mode         transcript.Mode
}

type ChatSession struct {
	UUID            string    `json:"uuid"`
	Title           string    `json:"title"`
	LastMessageTime time.Time `json:"last_message_time"`
}

type Portfolio struct {
	User
	Communities []Community       `json:"communities"`
	Actions     []PortfolioAction `json:"actions"`
	Skills      []SkillHistory    `json:"skills"`
}

type PortfolioAction struct {
	Action
	Skills      []ActionSkill     `json:"skills"`
	ChatHistory []transcript.Turn `json:"chat_history"`
}

// SkillHistory lists every published action a skill was attributed to.
type SkillHistory struct {
	Skill
	History []SkillEvent `json:"history"`
}

type SkillEvent struct {
	ActionTitle string `json:"action_title"`
	Summary     string `json:"summary"`
}
