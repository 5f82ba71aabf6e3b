package service

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"toeic_backend/internal/config"
	"toeic_backend/internal/model"
	"toeic_backend/internal/repository"
	"toeic_backend/internal/util"
	"toeic_backend/pkg/logger"
	"toeic_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 错误模式统计取最近多少条错题
const profileErrorLimit = 100

type PracticeService struct {
	PracticeRepo *repository.PracticeRepository
	MemberRepo   *repository.MemberRepository
	TestService  *TestService
	Cfg          *config.PracticeConfig
	// 为空时每次生成使用新的随机源
	Rand *rand.Rand
}

func NewPracticeService(practiceRepo *repository.PracticeRepository, memberRepo *repository.MemberRepository, testService *TestService, cfg *config.PracticeConfig) *PracticeService {
	return &PracticeService{
		PracticeRepo: practiceRepo,
		MemberRepo:   memberRepo,
		TestService:  testService,
		Cfg:          cfg,
	}
}

// PracticeSession 生成的练习及选题概况
type PracticeSession struct {
	*SessionView
	Ability float64        `json:"ability"`
	Quotas  Quotas         `json:"quotas"`
	Filled  map[string]int `json:"filled"`
}

func (s *PracticeService) normalizeCount(count int) int {
	if count <= 0 {
		count = s.Cfg.DefaultCount
	}
	if count <= 0 {
		count = 10
	}
	if s.Cfg.MaxCount > 0 && count > s.Cfg.MaxCount {
		count = s.Cfg.MaxCount
	}
	return count
}

// Generate 为会员在指定部分生成一套自适应练习并开始作答
func (s *PracticeService) Generate(memberID uint, part, count int) (*PracticeSession, error) {
	if !model.IsValidPart(part) {
		return nil, util.ErrInvalidPart
	}
	count = s.normalizeCount(count)

	member, err := s.MemberRepo.FindByID(memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrMemberNotFound
		}
		return nil, err
	}

	pool, err := s.PracticeRepo.PartPool(part)
	if err != nil {
		return nil, fmt.Errorf("load part %d pool: %w", part, err)
	}
	units := BuildUnits(pool)
	if len(units) == 0 {
		return nil, util.ErrNoPracticeQuestions
	}

	recentErrs, err := s.PracticeRepo.RecentErrors(memberID, part, profileErrorLimit)
	if err != nil {
		return nil, err
	}
	missed, err := s.PracticeRepo.UnresolvedErrorQuestionIDs(memberID, part)
	if err != nil {
		return nil, err
	}
	recentDays := s.Cfg.RecentDays
	if recentDays <= 0 {
		recentDays = 7
	}
	recentIDs, err := s.PracticeRepo.RecentAnsweredIDs(memberID, part, time.Now().AddDate(0, 0, -recentDays))
	if err != nil {
		return nil, err
	}
	recent := make(map[uint]bool, len(recentIDs))
	for _, id := range recentIDs {
		recent[id] = true
	}

	selection := SelectPractice(SelectorInput{
		Units:     units,
		Ability:   member.Ability(),
		Count:     count,
		MissedIDs: missed,
		Recent:    recent,
		Profile:   NewErrorProfile(recentErrs),
		Rand:      s.Rand,
	})
	ids := selection.QuestionIDs()
	if len(ids) == 0 {
		return nil, util.ErrNoPracticeQuestions
	}

	test := &model.Test{
		Title:       fmt.Sprintf("Part %d adaptive practice %s", part, time.Now().Format(util.TimeFormat)),
		Type:        model.TestTypePractice,
		Part:        &part,
		CreatorID:   memberID,
		CreatorKind: model.KindMember,
	}
	result := &model.TestResult{
		MemberID:  memberID,
		Status:    model.ResultInProgress,
		StartedAt: time.Now(),
	}
	if err := s.PracticeRepo.CreateSession(test, result, ids); err != nil {
		return nil, err
	}

	partLabel := strconv.Itoa(part)
	monitoring.PracticeSessions.WithLabelValues(partLabel).Inc()
	for bucket, n := range selection.Filled {
		monitoring.PracticeSelected.WithLabelValues(partLabel, bucket).Add(float64(n))
	}
	logger.Log.Info("Practice session generated",
		zap.Uint("memberId", memberID),
		zap.Int("part", part),
		zap.Float64("ability", member.Ability()),
		zap.Int("requested", count),
		zap.Int("selected", selection.Total()),
		zap.Any("filled", selection.Filled))

	view, err := s.TestService.Session(memberID, result.ID)
	if err != nil {
		return nil, err
	}
	return &PracticeSession{
		SessionView: view,
		Ability:     member.Ability(),
		Quotas:      selection.Quotas,
		Filled:      selection.Filled,
	}, nil
}

// PartSummary Part 结构说明及当前题库可用题量
type PartSummary struct {
	model.PartRule
	Available int64 `json:"available"`
}

func (s *PracticeService) Parts() ([]PartSummary, error) {
	counts, err := s.PracticeRepo.CountByPart()
	if err != nil {
		return nil, err
	}
	parts := make([]PartSummary, 0, len(model.PartRules))
	for part, rule := range model.PartRules {
		parts = append(parts, PartSummary{PartRule: rule, Available: counts[part]})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Part < parts[j].Part })
	return parts, nil
}
