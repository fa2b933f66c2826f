package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sbb/models"

	"gorm.io/gorm"
)

type answerInput struct {
	Content string `json:"content" validate:"required,text"`
}

// CreateAnswer links a new answer to an existing question.
func (s *ForumService) CreateAnswer(ctx context.Context, questionID uint, content string, createdAt time.Time) (*models.Answer, error) {
	if err := validateStruct(answerInput{Content: content}); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	answer := models.Answer{
		Content:    content,
		CreateDate: s.stamp(createdAt),
		QuestionID: questionID,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findQuestion(tx, questionID); err != nil {
			return err
		}

		if err := tx.Create(&answer).Error; err != nil {
			// The question was removed between the check and the insert.
			if errors.Is(err, gorm.ErrForeignKeyViolated) {
				return &NotFoundError{Entity: "question", ID: questionID}
			}
			return fmt.Errorf("failed to create answer: %w", err)
		}
		return s.evict(ctx, questionID)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, questionID)
	s.logger.Info().
		Uint("answer_id", answer.ID).
		Uint("question_id", questionID).
		Msg("answer created")
	s.publish(EventAnswerCreated, questionID, answer)
	return &answer, nil
}

func (s *ForumService) GetAnswer(ctx context.Context, id uint) (*models.Answer, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return findAnswer(s.db.WithContext(ctx), id)
}

// UpdateAnswer replaces the content. The id, question and creation date
// never change.
func (s *ForumService) UpdateAnswer(ctx context.Context, id uint, content string) (*models.Answer, error) {
	if err := validateStruct(answerInput{Content: content}); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var answer *models.Answer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Answer{}).
			Where("id = ?", id).
			Update("content", content)
		if result.Error != nil {
			return fmt.Errorf("failed to update answer %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return &NotFoundError{Entity: "answer", ID: id}
		}

		var err error
		if answer, err = findAnswer(tx, id); err != nil {
			return err
		}
		return s.evict(ctx, answer.QuestionID)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, answer.QuestionID)
	s.logger.Info().Uint("answer_id", id).Msg("answer updated")
	s.publish(EventAnswerUpdated, answer.QuestionID, answer)
	return answer, nil
}

func (s *ForumService) DeleteAnswer(ctx context.Context, id uint) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var answer *models.Answer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if answer, err = findAnswer(tx, id); err != nil {
			return err
		}
		if err := tx.Where("id = ?", id).Delete(&models.Answer{}).Error; err != nil {
			return fmt.Errorf("failed to delete answer %d: %w", id, err)
		}
		return s.evict(ctx, answer.QuestionID)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, answer.QuestionID)
	s.logger.Info().
		Uint("answer_id", id).
		Uint("question_id", answer.QuestionID).
		Msg("answer deleted")
	s.publish(EventAnswerDeleted, answer.QuestionID, map[string]interface{}{
		"id":          id,
		"question_id": answer.QuestionID,
	})
	return nil
}

func findAnswer(db *gorm.DB, id uint) (*models.Answer, error) {
	var answer models.Answer
	if err := db.Where("id = ?", id).First(&answer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "answer", ID: id}
		}
		return nil, fmt.Errorf("failed to load answer %d: %w", id, err)
	}
	return &answer, nil
}
