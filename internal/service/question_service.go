package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"

	"toeic_backend/internal/model"
	"toeic_backend/internal/repository"
	"toeic_backend/internal/util"

	"gorm.io/gorm"
)

type QuestionService struct {
	QuestionRepo   *repository.QuestionRepository
	StorageService *StorageService
}

func NewQuestionService(questionRepo *repository.QuestionRepository, storageService *StorageService) *QuestionService {
	return &QuestionService{
		QuestionRepo:   questionRepo,
		StorageService: storageService,
	}
}

type AnswerInput struct {
	Label     string `json:"label" validate:"required,max=2"`
	Content   string `json:"content"`
	IsCorrect bool   `json:"isCorrect"`
}

// QuestionInput 创建/更新题目的请求体，题组通过 Children 携带小题
type QuestionInput struct {
	Part          int             `json:"part" binding:"required,min=1,max=7"`
	ParentID      *uint           `json:"parentId"`
	Content       string          `json:"content"`
	Passage       string          `json:"passage"`
	ImageURL      string          `json:"imageUrl"`
	AudioURL      string          `json:"audioUrl"`
	Transcript    string          `json:"transcript"`
	Explanation   string          `json:"explanation"`
	Topic         string          `json:"topic"`
	Category      string          `json:"category"`
	GrammarTag    string          `json:"grammarTag"`
	VocabularyTag string          `json:"vocabularyTag"`
	SortOrder     int             `json:"sortOrder"`
	Answers       []AnswerInput   `json:"answers"`
	Children      []QuestionInput `json:"children"`
}

func (in *QuestionInput) toModel() *model.Question {
	q := &model.Question{
		Part:          in.Part,
		ParentID:      in.ParentID,
		Content:       strings.TrimSpace(in.Content),
		Passage:       in.Passage,
		ImageURL:      in.ImageURL,
		AudioURL:      in.AudioURL,
		Transcript:    in.Transcript,
		Explanation:   in.Explanation,
		Topic:         strings.TrimSpace(in.Topic),
		Category:      strings.TrimSpace(in.Category),
		GrammarTag:    strings.TrimSpace(in.GrammarTag),
		VocabularyTag: strings.TrimSpace(in.VocabularyTag),
		SortOrder:     in.SortOrder,
		IsGroup:       len(in.Children) > 0,
	}
	for _, a := range in.Answers {
		q.Answers = append(q.Answers, model.Answer{
			Label:     strings.ToUpper(strings.TrimSpace(a.Label)),
			Content:   a.Content,
			IsCorrect: a.IsCorrect,
		})
	}
	for i := range in.Children {
		child := in.Children[i].toModel()
		child.Part = in.Part
		if child.SortOrder == 0 {
			child.SortOrder = i + 1
		}
		q.Children = append(q.Children, *child)
	}
	return q
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", util.ErrInvalidQuestion, fmt.Sprintf(format, args...))
}

// ValidateAnswers 独立小题：选项数等于该部分规定数量，且恰有一个正确答案
func ValidateAnswers(rule model.PartRule, answers []model.Answer) error {
	if len(answers) != rule.OptionCount {
		return invalid("part %d requires %d options, got %d", rule.Part, rule.OptionCount, len(answers))
	}
	correct := 0
	labels := make(map[string]bool, len(answers))
	for _, a := range answers {
		if a.Label == "" {
			return invalid("answer label is required")
		}
		if labels[a.Label] {
			return invalid("duplicate answer label %s", a.Label)
		}
		labels[a.Label] = true
		if a.IsCorrect {
			correct++
		}
	}
	if correct != 1 {
		return invalid("exactly one correct answer required, got %d", correct)
	}
	return nil
}

// ValidateQuestion 按 TOEIC 各部分结构校验顶层题目（含题组小题）
// parent 非空表示向已有题组追加小题
func ValidateQuestion(q *model.Question, parent *model.Question) error {
	rule, ok := model.PartRules[q.Part]
	if !ok {
		return util.ErrInvalidPart
	}

	if parent != nil {
		if !parent.IsGroup {
			return invalid("parent question %d is not a group", parent.ID)
		}
		if parent.Part != q.Part {
			return invalid("child part %d does not match group part %d", q.Part, parent.Part)
		}
		if q.IsGroup {
			return invalid("groups cannot be nested")
		}
		return ValidateAnswers(rule, q.Answers)
	}

	if !rule.Grouped {
		if q.IsGroup {
			return invalid("part %d does not use question groups", q.Part)
		}
		if rule.RequireAudio && q.AudioURL == "" {
			return invalid("part %d requires audio", q.Part)
		}
		if rule.RequireImage && q.ImageURL == "" {
			return invalid("part %d requires an image", q.Part)
		}
		return ValidateAnswers(rule, q.Answers)
	}

	if !q.IsGroup {
		return invalid("part %d questions must be grouped under a conversation, talk or passage", q.Part)
	}
	if len(q.Answers) > 0 {
		return invalid("a question group has no answers of its own")
	}
	if rule.RequireAudio && q.AudioURL == "" {
		return invalid("part %d group requires audio", q.Part)
	}
	if rule.RequirePassage && strings.TrimSpace(q.Passage) == "" {
		return invalid("part %d group requires a passage", q.Part)
	}
	for i := range q.Children {
		child := &q.Children[i]
		if child.Part != q.Part {
			return invalid("child part %d does not match group part %d", child.Part, q.Part)
		}
		if len(child.Children) > 0 {
			return invalid("groups cannot be nested")
		}
		if err := ValidateAnswers(rule, child.Answers); err != nil {
			return fmt.Errorf("child %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *QuestionService) Get(id uint) (*model.Question, error) {
	q, err := s.QuestionRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuestionNotFound
		}
		return nil, err
	}
	return q, nil
}

func (s *QuestionService) List(f repository.QuestionFilter) ([]model.Question, int64, error) {
	if f.Part != 0 && !model.IsValidPart(f.Part) {
		return nil, 0, util.ErrInvalidPart
	}
	return s.QuestionRepo.List(f)
}

func (s *QuestionService) Create(in QuestionInput) (*model.Question, error) {
	q := in.toModel()

	var parent *model.Question
	if q.ParentID != nil {
		p, err := s.Get(*q.ParentID)
		if err != nil {
			return nil, err
		}
		parent = p
	}
	if err := ValidateQuestion(q, parent); err != nil {
		return nil, err
	}
	if err := s.QuestionRepo.Create(q); err != nil {
		return nil, err
	}
	return s.Get(q.ID)
}

// Update 更新题目内容与选项；题组小题通过各自的 ID 单独更新
func (s *QuestionService) Update(id uint, in QuestionInput) (*model.Question, error) {
	existing, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if in.Part != existing.Part {
		return nil, invalid("part cannot be changed")
	}

	q := in.toModel()
	q.BaseModel = existing.BaseModel
	q.ParentID = existing.ParentID
	q.IsGroup = existing.IsGroup
	q.Children = existing.Children
	q.Difficulty = existing.Difficulty
	q.Discrimination = existing.Discrimination
	q.Guessing = existing.Guessing
	q.Quality = existing.Quality
	q.CalibratedAt = existing.CalibratedAt
	if q.AudioURL == "" {
		q.AudioURL = existing.AudioURL
	}
	if q.ImageURL == "" {
		q.ImageURL = existing.ImageURL
	}

	var parent *model.Question
	if q.ParentID != nil {
		if parent, err = s.Get(*q.ParentID); err != nil {
			return nil, err
		}
	}
	if err := ValidateQuestion(q, parent); err != nil {
		return nil, err
	}
	if err := s.QuestionRepo.Update(q); err != nil {
		return nil, err
	}
	return s.Get(id)
}

func (s *QuestionService) Delete(id uint) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	return s.QuestionRepo.Delete(id)
}

// UploadMedia 上传并绑定题目的图片或音频
func (s *QuestionService) UploadMedia(ctx context.Context, id uint, kind MediaKind, fh *multipart.FileHeader) (string, error) {
	q, err := s.Get(id)
	if err != nil {
		return "", err
	}
	url, err := s.StorageService.SaveQuestionMedia(ctx, q.Part, kind, fh)
	if err != nil {
		return "", err
	}
	field := "image_url"
	if kind == MediaAudio {
		field = "audio_url"
	}
	if err := s.QuestionRepo.UpdateMedia(id, field, url); err != nil {
		return "", err
	}
	return url, nil
}

// StoreMedia 先上传媒体拿到地址，再随题目一起提交
func (s *QuestionService) StoreMedia(ctx context.Context, part int, kind MediaKind, fh *multipart.FileHeader) (string, error) {
	if !model.IsValidPart(part) {
		return "", util.ErrInvalidPart
	}
	return s.StorageService.SaveQuestionMedia(ctx, part, kind, fh)
}
