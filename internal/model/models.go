// Package model defines the data models for the points bot.
package model

import "time"

// ScoreKey identifies a score row. GroupID is 0 when scores are kept globally.
type ScoreKey struct {
	Username string
	GroupID  int64
}

// UserScore is a user's point total within one group.
// At most one row exists per (username, group_id).
type UserScore struct {
	ID        int64      `db:"id" bson:"-" gorm:"primaryKey;autoIncrement"`
	Username  string     `db:"username" bson:"username" gorm:"size:255;not null;uniqueIndex:idx_users_username_group"`
	GroupID   int64      `db:"group_id" bson:"group_id" gorm:"not null;uniqueIndex:idx_users_username_group;index:idx_users_group_points,priority:1"`
	GroupName string     `db:"group_name" bson:"group_name" gorm:"not null;default:''"`
	Points    int64      `db:"points" bson:"points" gorm:"not null;default:0;index:idx_users_group_points,priority:2,sort:desc"`
	LastClaim *time.Time `db:"last_claim" bson:"last_claim,omitempty"`
	CreatedAt time.Time  `db:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" bson:"updated_at"`
}

// TableName keeps the relational table name aligned with the document collection.
func (UserScore) TableName() string { return "users" }

// AwardLogEntry is an append-only audit record of one award action.
type AwardLogEntry struct {
	ID        int64     `db:"id" bson:"-" gorm:"primaryKey;autoIncrement"`
	Giver     string    `db:"giver" bson:"giver" gorm:"size:255;not null;default:''"`
	Receiver  string    `db:"receiver" bson:"receiver" gorm:"size:255;not null"`
	Points    int64     `db:"points" bson:"points" gorm:"not null"`
	GroupID   int64     `db:"group_id" bson:"group_id" gorm:"not null;index"`
	GroupName string    `db:"group_name" bson:"group_name" gorm:"not null;default:''"`
	Time      time.Time `db:"time" bson:"time" gorm:"column:time;not null"`
}

// TableName keeps the relational table name aligned with the document collection.
func (AwardLogEntry) TableName() string { return "logs" }
