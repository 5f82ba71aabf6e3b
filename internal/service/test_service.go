package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"toeic_backend/internal/model"
	"toeic_backend/internal/repository"
	"toeic_backend/internal/util"
	"toeic_backend/pkg/logger"
	"toeic_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type TestService struct {
	TestRepo     *repository.TestRepository
	QuestionRepo *repository.QuestionRepository
	// 测试中置为同步执行，便于断言错题记录
	syncAnalysis bool
}

func NewTestService(testRepo *repository.TestRepository, questionRepo *repository.QuestionRepository) *TestService {
	return &TestService{
		TestRepo:     testRepo,
		QuestionRepo: questionRepo,
	}
}

type TestInput struct {
	Title           string `json:"title" binding:"required,max=255"`
	Type            string `json:"type" binding:"required,oneof=full part"`
	Part            *int   `json:"part" binding:"omitempty,min=1,max=7"`
	DurationMinutes int    `json:"durationMinutes" binding:"min=0"`
	QuestionIDs     []uint `json:"questionIds" binding:"required,min=1"`
}

// AnswerView 作答时下发的选项，不含正确标记
type AnswerView struct {
	ID      uint   `json:"id"`
	Label   string `json:"label"`
	Content string `json:"content"`
}

// QuestionView 作答时下发的题目，题组父题紧挨在其小题之前
type QuestionView struct {
	ID       uint         `json:"id"`
	Part     int          `json:"part"`
	ParentID *uint        `json:"parentId,omitempty"`
	IsGroup  bool         `json:"isGroup"`
	Content  string       `json:"content"`
	Passage  string       `json:"passage,omitempty"`
	ImageURL string       `json:"imageUrl,omitempty"`
	AudioURL string       `json:"audioUrl,omitempty"`
	Answers  []AnswerView `json:"answers,omitempty"`
	ChosenID *uint        `json:"chosenId,omitempty"`
}

type SessionView struct {
	Result    *model.TestResult `json:"result"`
	Test      *model.Test       `json:"test"`
	Questions []QuestionView    `json:"questions"`
}

type AnswerSubmission struct {
	QuestionID uint  `json:"questionId" binding:"required"`
	AnswerID   *uint `json:"answerId"`
}

// ResultDetail 提交后的成绩详情，包含正确答案与解析
type ResultDetail struct {
	Result    *model.TestResult  `json:"result"`
	Questions []model.Question   `json:"questions"`
	Answers   []model.UserAnswer `json:"answers"`
}

// expandGroups 题组 ID 展开为父题+全部小题，保持给定顺序并去重
func (s *TestService) expandGroups(ids []uint, part *int) ([]uint, error) {
	questions, err := s.QuestionRepo.FindByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]*model.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	seen := make(map[uint]bool)
	result := make([]uint, 0, len(ids))
	add := func(id uint) {
		if !seen[id] {
			seen[id] = true
			result = append(result, id)
		}
	}
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", util.ErrQuestionNotFound, id)
		}
		if part != nil && q.Part != *part {
			return nil, fmt.Errorf("%w: question %d belongs to part %d", util.ErrInvalidQuestion, id, q.Part)
		}
		if q.ParentID != nil {
			return nil, fmt.Errorf("%w: question %d is inside group %d, add the group instead", util.ErrInvalidQuestion, id, *q.ParentID)
		}
		add(id)
		if q.IsGroup {
			full, err := s.QuestionRepo.FindByID(id)
			if err != nil {
				return nil, err
			}
			for _, child := range full.Children {
				add(child.ID)
			}
		}
	}
	return result, nil
}

func (s *TestService) CreateTest(claims *util.Claims, in TestInput) (*model.Test, error) {
	if in.Type == model.TestTypePart && in.Part == nil {
		return nil, util.ErrInvalidPart
	}
	if in.Type == model.TestTypeFull {
		in.Part = nil
	}
	ids, err := s.expandGroups(in.QuestionIDs, in.Part)
	if err != nil {
		return nil, err
	}
	test := &model.Test{
		Title:           strings.TrimSpace(in.Title),
		Type:            in.Type,
		Part:            in.Part,
		DurationMinutes: in.DurationMinutes,
		CreatorID:       claims.AccountID,
		CreatorKind:     claims.Kind,
	}
	if err := s.TestRepo.CreateWithContents(test, ids); err != nil {
		return nil, err
	}
	return test, nil
}

func (s *TestService) getTest(id uint) (*model.Test, error) {
	test, err := s.TestRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrTestNotFound
		}
		return nil, err
	}
	return test, nil
}

func (s *TestService) UpdateTest(id uint, in TestInput) (*model.Test, error) {
	test, err := s.getTest(id)
	if err != nil {
		return nil, err
	}
	if test.Type == model.TestTypePractice {
		return nil, util.ErrPermissionDenied
	}
	if in.Type == model.TestTypePart && in.Part == nil {
		return nil, util.ErrInvalidPart
	}
	if in.Type == model.TestTypeFull {
		in.Part = nil
	}
	ids, err := s.expandGroups(in.QuestionIDs, in.Part)
	if err != nil {
		return nil, err
	}
	test.Title = strings.TrimSpace(in.Title)
	test.Type = in.Type
	test.Part = in.Part
	test.DurationMinutes = in.DurationMinutes
	if err := s.TestRepo.Update(test); err != nil {
		return nil, err
	}
	if err := s.TestRepo.ReplaceContents(id, ids); err != nil {
		return nil, err
	}
	return test, nil
}

func (s *TestService) SetPublished(id uint, published bool) (*model.Test, error) {
	test, err := s.getTest(id)
	if err != nil {
		return nil, err
	}
	test.IsPublished = published
	if published {
		now := time.Now()
		test.PublishedAt = &now
	} else {
		test.PublishedAt = nil
	}
	if err := s.TestRepo.Update(test); err != nil {
		return nil, err
	}
	return test, nil
}

func (s *TestService) DeleteTest(id uint) error {
	if _, err := s.getTest(id); err != nil {
		return err
	}
	return s.TestRepo.Delete(id)
}

// GetTest 员工查看试卷详情（含答案）
func (s *TestService) GetTest(id uint) (*model.Test, error) {
	test, err := s.TestRepo.FindWithQuestions(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrTestNotFound
		}
		return nil, err
	}
	return test, nil
}

func (s *TestService) ListTests(testType string, part int, publishedOnly bool, page, limit int) ([]model.Test, int64, error) {
	return s.TestRepo.List(testType, part, publishedOnly, page, limit)
}

// Start 会员开始一次作答
func (s *TestService) Start(memberID, testID uint) (*SessionView, error) {
	test, err := s.getTest(testID)
	if err != nil {
		return nil, err
	}
	if test.Type == model.TestTypePractice {
		return nil, util.ErrTestNotFound
	}
	if !test.IsPublished {
		return nil, util.ErrTestNotPublished
	}
	result := &model.TestResult{
		MemberID:  memberID,
		TestID:    testID,
		Status:    model.ResultInProgress,
		StartedAt: time.Now(),
	}
	if err := s.TestRepo.CreateResult(result); err != nil {
		return nil, err
	}
	return s.Session(memberID, result.ID)
}

func (s *TestService) ownedResult(memberID, resultID uint) (*model.TestResult, error) {
	result, err := s.TestRepo.FindResult(resultID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrResultNotFound
		}
		return nil, err
	}
	if result.MemberID != memberID {
		return nil, util.ErrResultNotFound
	}
	return result, nil
}

func toView(q *model.Question) QuestionView {
	v := QuestionView{
		ID:       q.ID,
		Part:     q.Part,
		ParentID: q.ParentID,
		IsGroup:  q.IsGroup,
		Content:  q.Content,
		Passage:  q.Passage,
		ImageURL: q.ImageURL,
		AudioURL: q.AudioURL,
	}
	for _, a := range q.Answers {
		v.Answers = append(v.Answers, AnswerView{ID: a.ID, Label: a.Label, Content: a.Content})
	}
	return v
}

// Session 返回作答中的题目（不含正确答案）及已保存的选项
func (s *TestService) Session(memberID, resultID uint) (*SessionView, error) {
	result, err := s.ownedResult(memberID, resultID)
	if err != nil {
		return nil, err
	}
	test, err := s.TestRepo.FindWithQuestions(result.TestID)
	if err != nil {
		return nil, err
	}

	chosen := make(map[uint]*uint, len(result.Answers))
	for _, a := range result.Answers {
		chosen[a.QuestionID] = a.AnswerID
	}

	views := make([]QuestionView, 0, len(test.Contents))
	for i := range test.Contents {
		v := toView(&test.Contents[i].Question)
		v.ChosenID = chosen[v.ID]
		views = append(views, v)
	}
	test.Contents = nil
	result.Test = nil
	return &SessionView{Result: result, Test: test, Questions: views}, nil
}

// gradeAnswers 校验提交的题目属于本卷并判定对错
func gradeAnswers(result *model.TestResult, questions map[uint]*model.Question, subs []AnswerSubmission) ([]model.UserAnswer, error) {
	now := time.Now()
	answers := make([]model.UserAnswer, 0, len(subs))
	for _, sub := range subs {
		q, ok := questions[sub.QuestionID]
		if !ok || q.IsGroup {
			return nil, fmt.Errorf("%w: question %d is not part of this test", util.ErrInvalidQuestion, sub.QuestionID)
		}
		correct := false
		if sub.AnswerID != nil {
			valid := false
			for _, a := range q.Answers {
				if a.ID == *sub.AnswerID {
					valid = true
					correct = a.IsCorrect
				}
			}
			if !valid {
				return nil, fmt.Errorf("%w: answer %d does not belong to question %d", util.ErrInvalidQuestion, *sub.AnswerID, q.ID)
			}
		}
		answers = append(answers, model.UserAnswer{
			ResultID:   result.ID,
			QuestionID: q.ID,
			MemberID:   result.MemberID,
			AnswerID:   sub.AnswerID,
			IsCorrect:  correct,
			AnsweredAt: now,
		})
	}
	return answers, nil
}

func questionMap(test *model.Test) map[uint]*model.Question {
	m := make(map[uint]*model.Question, len(test.Contents))
	for i := range test.Contents {
		q := &test.Contents[i].Question
		m[q.ID] = q
	}
	return m
}

// SaveAnswers 作答过程中保存选项，同一题重复提交以最后一次为准
func (s *TestService) SaveAnswers(memberID, resultID uint, subs []AnswerSubmission) error {
	result, err := s.ownedResult(memberID, resultID)
	if err != nil {
		return err
	}
	if result.Status != model.ResultInProgress {
		return util.ErrResultAlreadySubmitted
	}
	test, err := s.TestRepo.FindWithQuestions(result.TestID)
	if err != nil {
		return err
	}
	answers, err := gradeAnswers(result, questionMap(test), subs)
	if err != nil {
		return err
	}
	return s.TestRepo.SaveAnswers(answers)
}

// Score 按听力/阅读分别换算 TOEIC 分数，题组父题不计分
func Score(questions []*model.Question, answers []model.UserAnswer) (correct, total, listening, reading int) {
	isCorrect := make(map[uint]bool, len(answers))
	for _, a := range answers {
		isCorrect[a.QuestionID] = a.IsCorrect
	}
	var lCorrect, lTotal, rCorrect, rTotal int
	for _, q := range questions {
		if q.IsGroup {
			continue
		}
		listeningPart := model.PartRules[q.Part].Section == model.SectionListening
		if listeningPart {
			lTotal++
		} else {
			rTotal++
		}
		if isCorrect[q.ID] {
			if listeningPart {
				lCorrect++
			} else {
				rCorrect++
			}
		}
	}
	return lCorrect + rCorrect, lTotal + rTotal,
		util.ScaleSectionScore(lCorrect, lTotal),
		util.ScaleSectionScore(rCorrect, rTotal)
}

// Submit 交卷评分，随后异步分析错题
func (s *TestService) Submit(memberID, resultID uint, subs []AnswerSubmission) (*model.TestResult, error) {
	result, err := s.ownedResult(memberID, resultID)
	if err != nil {
		return nil, err
	}
	if result.Status != model.ResultInProgress {
		return nil, util.ErrResultAlreadySubmitted
	}
	test, err := s.TestRepo.FindWithQuestions(result.TestID)
	if err != nil {
		return nil, err
	}
	qmap := questionMap(test)

	if len(subs) > 0 {
		graded, err := gradeAnswers(result, qmap, subs)
		if err != nil {
			return nil, err
		}
		if err := s.TestRepo.SaveAnswers(graded); err != nil {
			return nil, err
		}
	}

	answers, err := s.TestRepo.ListAnswers(result.ID)
	if err != nil {
		return nil, err
	}

	questions := make([]*model.Question, 0, len(test.Contents))
	for i := range test.Contents {
		questions = append(questions, &test.Contents[i].Question)
	}
	result.CorrectCount, result.TotalCount, result.ListeningScore, result.ReadingScore = Score(questions, answers)
	result.TotalScore = result.ListeningScore + result.ReadingScore

	ok, err := s.TestRepo.CompleteResult(result)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, util.ErrResultAlreadySubmitted
	}
	monitoring.TestSubmissions.WithLabelValues(test.Type).Inc()

	if s.syncAnalysis {
		s.analyze(memberID, result.ID, questions, answers)
	} else {
		go s.analyze(memberID, result.ID, questions, answers)
	}

	result.Answers = answers
	result.Test = nil
	return result, nil
}

// analyze 记录本次错题并解决此前已答对的错题，失败只记日志
func (s *TestService) analyze(memberID, resultID uint, questions []*model.Question, answers []model.UserAnswer) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("Post-session analysis panicked", zap.Uint("resultId", resultID), zap.Any("panic", r))
		}
	}()

	byID := make(map[uint]*model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	var wrong []model.UserError
	var correctIDs []uint
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			continue
		}
		if a.IsCorrect {
			correctIDs = append(correctIDs, q.ID)
			continue
		}
		if a.AnswerID == nil {
			continue
		}
		wrong = append(wrong, model.UserError{
			MemberID:     memberID,
			Part:         q.Part,
			QuestionID:   q.ID,
			ResultID:     resultID,
			QuestionTags: q.Tags(),
		})
	}

	if err := s.TestRepo.CreateErrors(wrong); err != nil {
		logger.Log.Error("Failed to record user errors", zap.Uint("resultId", resultID), zap.Error(err))
		return
	}
	resolved, err := s.TestRepo.ResolveErrors(memberID, correctIDs)
	if err != nil {
		logger.Log.Error("Failed to resolve user errors", zap.Uint("resultId", resultID), zap.Error(err))
		return
	}
	logger.Log.Debug("Post-session analysis done",
		zap.Uint("memberId", memberID),
		zap.Uint("resultId", resultID),
		zap.Int("errors", len(wrong)),
		zap.Int64("resolved", resolved))
}

func (s *TestService) History(memberID uint, status string, page, limit int) ([]model.TestResult, int64, error) {
	return s.TestRepo.ListResults(memberID, status, page, limit)
}

// Detail 已提交的成绩详情
func (s *TestService) Detail(memberID, resultID uint) (*ResultDetail, error) {
	result, err := s.ownedResult(memberID, resultID)
	if err != nil {
		return nil, err
	}
	if result.Status != model.ResultCompleted {
		return nil, util.ErrResultInProgress
	}
	test, err := s.TestRepo.FindWithQuestions(result.TestID)
	if err != nil {
		return nil, err
	}
	questions := make([]model.Question, 0, len(test.Contents))
	for _, c := range test.Contents {
		questions = append(questions, c.Question)
	}
	answers := result.Answers
	result.Answers = nil
	return &ResultDetail{Result: result, Questions: questions, Answers: answers}, nil
}
