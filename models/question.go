package models

import (
	"time"
)

const SubjectMaxLength = 200

type Question struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Subject    string    `json:"subject" gorm:"size:200;not null"`
	Content    string    `json:"content" gorm:"type:text;not null"`
	CreateDate time.Time `json:"create_date" gorm:"not null"`

	// Relationships
	Answers []Answer `json:"answers,omitempty" gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE"`
}

func (Question) TableName() string {
	return "question"
}
