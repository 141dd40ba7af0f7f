package models

import (
	"time"

	"github.com/gofrs/uuid"
)

// Author is the externally authenticated principal a comment belongs to.
// The service never authenticates; identity is established upstream.
type Author struct {
	ID     string `bson:"id" json:"id"`
	Name   string `bson:"name" json:"name"`
	Email  string `bson:"email" json:"email"`
	Avatar string `bson:"avatar" json:"avatar"`
}

type Comment struct {
	ID       uuid.UUID `bson:"_id" json:"id"`
	Author   Author    `bson:"author" json:"author"`
	Content  string    `bson:"content" json:"content"`
	Approved bool      `bson:"approved" json:"approved"`
	Created  time.Time `bson:"created" json:"created"`
}

// Message is a contact form submission.
type Message struct {
	ID      uuid.UUID `bson:"_id" json:"id"`
	Name    string    `bson:"name" json:"name"`
	Email   string    `bson:"email" json:"email"`
	Text    string    `bson:"text" json:"text"`
	IP      string    `bson:"ip" json:"ip"`
	Created time.Time `bson:"created" json:"created"`
}
