package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sbb/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Publisher receives an event after every committed forum mutation.
type Publisher interface {
	Publish(eventType string, questionID uint, payload interface{})
}

// ForumService owns questions and their answers. The cache and publisher
// are optional.
type ForumService struct {
	db      *gorm.DB
	cache   QuestionCache
	events  Publisher
	logger  zerolog.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewForumService(db *gorm.DB, cache QuestionCache, events Publisher, logger zerolog.Logger, timeout time.Duration) *ForumService {
	return &ForumService{
		db:      db,
		cache:   cache,
		events:  events,
		logger:  logger,
		timeout: timeout,
		now:     time.Now,
	}
}

type questionInput struct {
	Subject string `json:"subject" validate:"required,text,max=200"`
	Content string `json:"content" validate:"required,text"`
}

func (s *ForumService) CreateQuestion(ctx context.Context, subject, content string, createdAt time.Time) (*models.Question, error) {
	if err := validateStruct(questionInput{Subject: subject, Content: content}); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	question := models.Question{
		Subject:    subject,
		Content:    content,
		CreateDate: s.stamp(createdAt),
	}
	if err := s.db.WithContext(ctx).Create(&question).Error; err != nil {
		return nil, fmt.Errorf("failed to create question: %w", err)
	}

	s.logger.Info().Uint("question_id", question.ID).Msg("question created")
	s.publish(EventQuestionCreated, question.ID, question)
	return &question, nil
}

// GetQuestion returns the question with its answers in creation order.
func (s *ForumService) GetQuestion(ctx context.Context, id uint) (*models.Question, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		version   int64
		cacheable bool
	)
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, id)
		if err != nil {
			s.logger.Warn().Err(err).Uint("question_id", id).Msg("question cache read failed")
		} else if cached != nil {
			return cached, nil
		}

		// Taken before the load: a mutation committed in between voids the Set.
		if version, err = s.cache.Version(ctx, id); err != nil {
			s.logger.Warn().Err(err).Uint("question_id", id).Msg("question cache version read failed")
		} else {
			cacheable = true
		}
	}

	question, err := loadQuestion(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := s.cache.Set(ctx, question, version); err != nil {
			s.logger.Warn().Err(err).Uint("question_id", id).Msg("question cache write failed")
		}
	}
	return question, nil
}

// ListQuestions returns every question, newest first, without answers.
func (s *ForumService) ListQuestions(ctx context.Context) ([]models.Question, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	questions := make([]models.Question, 0)
	if err := s.db.WithContext(ctx).Order("id DESC").Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	return questions, nil
}

// UpdateQuestion replaces subject and content. The id and creation date
// never change.
func (s *ForumService) UpdateQuestion(ctx context.Context, id uint, subject, content string) (*models.Question, error) {
	if err := validateStruct(questionInput{Subject: subject, Content: content}); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var question *models.Question
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Question{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{"subject": subject, "content": content})
		if result.Error != nil {
			return fmt.Errorf("failed to update question %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return &NotFoundError{Entity: "question", ID: id}
		}

		var err error
		if question, err = loadQuestion(tx, id); err != nil {
			return err
		}
		return s.evict(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	s.logger.Info().Uint("question_id", id).Msg("question updated")
	s.publish(EventQuestionUpdated, id, question)
	return question, nil
}

// DeleteQuestion removes the question and all of its answers in one
// transaction.
func (s *ForumService) DeleteQuestion(ctx context.Context, id uint) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var removedAnswers int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findQuestion(tx, id); err != nil {
			return err
		}

		// The foreign key cascades as well; deleting here keeps the
		// guarantee on stores where it is not enforced.
		result := tx.Where("question_id = ?", id).Delete(&models.Answer{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete answers of question %d: %w", id, result.Error)
		}
		removedAnswers = result.RowsAffected

		if err := tx.Where("id = ?", id).Delete(&models.Question{}).Error; err != nil {
			return fmt.Errorf("failed to delete question %d: %w", id, err)
		}
		return s.evict(ctx, id)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, id)
	s.logger.Info().
		Uint("question_id", id).
		Int64("answers_removed", removedAnswers).
		Msg("question deleted")
	s.publish(EventQuestionDeleted, id, map[string]interface{}{"id": id})
	return nil
}

func findQuestion(db *gorm.DB, id uint) (*models.Question, error) {
	var question models.Question
	if err := db.Where("id = ?", id).First(&question).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "question", ID: id}
		}
		return nil, fmt.Errorf("failed to load question %d: %w", id, err)
	}
	return &question, nil
}

func loadQuestion(db *gorm.DB, id uint) (*models.Question, error) {
	var question models.Question
	err := db.Where("id = ?", id).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("id")
		}).
		First(&question).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "question", ID: id}
		}
		return nil, fmt.Errorf("failed to load question %d: %w", id, err)
	}
	return &question, nil
}

func (s *ForumService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// stamp defaults a zero time to now and normalizes to the precision every
// supported store keeps.
func (s *ForumService) stamp(t time.Time) time.Time {
	if t.IsZero() {
		t = s.now()
	}
	return t.UTC().Truncate(time.Microsecond)
}

// evict invalidates the cached question from inside a transaction. Its
// error rolls the mutation back.
func (s *ForumService) evict(ctx context.Context, questionID uint) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, questionID)
}

// invalidate runs after commit and voids reads that loaded the old rows
// while the transaction was open.
func (s *ForumService) invalidate(ctx context.Context, questionID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, questionID); err != nil {
		s.logger.Warn().Err(err).Uint("question_id", questionID).Msg("question cache invalidation failed")
	}
}

func (s *ForumService) publish(eventType string, questionID uint, payload interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(eventType, questionID, payload)
}
