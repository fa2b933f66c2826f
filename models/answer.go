package models

import (
	"time"
)

type Answer struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Content    string    `json:"content" gorm:"type:text;not null"`
	CreateDate time.Time `json:"create_date" gorm:"not null"`
	QuestionID uint      `json:"question_id" gorm:"not null;index"`
}

func (Answer) TableName() string {
	return "answer"
}
