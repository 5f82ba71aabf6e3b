package service

import (
	"fmt"
	"io"
	"reflect"
	"strings"

	"toeic_backend/internal/model"
	"toeic_backend/internal/repository"
	"toeic_backend/internal/util"
	"toeic_backend/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const questionSheet = "Questions"

// 导入/导出表头，列顺序固定
var questionColumns = []string{
	"group_key", "content", "passage",
	"option_a", "option_b", "option_c", "option_d", "correct",
	"explanation", "topic", "category", "grammar_tag", "vocabulary_tag",
	"audio_url", "image_url", "transcript",
}

var importValidate = newImportValidator()

func newImportValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("excel")
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// questionRow 表格中的一行，对应一道可作答的小题
type questionRow struct {
	GroupKey      string `excel:"group_key"`
	Content       string `excel:"content"`
	Passage       string `excel:"passage"`
	OptionA       string `excel:"option_a" validate:"notblank"`
	OptionB       string `excel:"option_b" validate:"notblank"`
	OptionC       string `excel:"option_c" validate:"notblank"`
	OptionD       string `excel:"option_d"`
	Correct       string `excel:"correct" validate:"required,oneof=A B C D"`
	Explanation   string `excel:"explanation"`
	Topic         string `excel:"topic" validate:"max=100"`
	Category      string `excel:"category" validate:"max=100"`
	GrammarTag    string `excel:"grammar_tag" validate:"max=100"`
	VocabularyTag string `excel:"vocabulary_tag" validate:"max=100"`
	AudioURL      string `excel:"audio_url" validate:"omitempty,max=255"`
	ImageURL      string `excel:"image_url" validate:"omitempty,max=255"`
	Transcript    string `excel:"transcript"`
}

func parseRow(cells []string) questionRow {
	cell := func(i int) string {
		if i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}
	return questionRow{
		GroupKey:      cell(0),
		Content:       cell(1),
		Passage:       cell(2),
		OptionA:       cell(3),
		OptionB:       cell(4),
		OptionC:       cell(5),
		OptionD:       cell(6),
		Correct:       strings.ToUpper(cell(7)),
		Explanation:   cell(8),
		Topic:         cell(9),
		Category:      cell(10),
		GrammarTag:    cell(11),
		VocabularyTag: cell(12),
		AudioURL:      cell(13),
		ImageURL:      cell(14),
		Transcript:    cell(15),
	}
}

func (r questionRow) empty() bool {
	return r.Content == "" && r.OptionA == "" && r.OptionB == "" && r.Correct == ""
}

func (r questionRow) toQuestion(part int) *model.Question {
	q := &model.Question{
		Part:          part,
		Content:       r.Content,
		Explanation:   r.Explanation,
		Topic:         r.Topic,
		Category:      r.Category,
		GrammarTag:    r.GrammarTag,
		VocabularyTag: r.VocabularyTag,
		Transcript:    r.Transcript,
	}
	options := []string{r.OptionA, r.OptionB, r.OptionC, r.OptionD}
	optionCount := model.PartRules[part].OptionCount
	for i := 0; i < optionCount && i < len(options); i++ {
		label := string(rune('A' + i))
		q.Answers = append(q.Answers, model.Answer{
			Label:     label,
			Content:   options[i],
			IsCorrect: label == r.Correct,
		})
	}
	return q
}

type ImportResult struct {
	TotalRows int      `json:"totalRows"`
	Created   int      `json:"created"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
}

type QuestionImportService struct {
	QuestionRepo *repository.QuestionRepository
}

func NewQuestionImportService(questionRepo *repository.QuestionRepository) *QuestionImportService {
	return &QuestionImportService{QuestionRepo: questionRepo}
}

func validationMessage(err error) string {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
		return strings.Join(msgs, "; ")
	}
	return err.Error()
}

// Import 读取 xlsx 第一个工作表；分组题型中相同 group_key 的行组成一个题组，
// 题组的篇章、音频、图片取该组第一行
func (s *QuestionImportService) Import(part int, r io.Reader) (*ImportResult, error) {
	rule, ok := model.PartRules[part]
	if !ok {
		return nil, util.ErrInvalidPart
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}

	result := &ImportResult{Errors: make([]string, 0)}
	var questions []*model.Question
	groups := make(map[string]*model.Question)
	groupLine := make(map[*model.Question]int)

	for i, cells := range rows {
		if i == 0 {
			continue
		}
		row := parseRow(cells)
		if row.empty() {
			continue
		}
		result.TotalRows++
		line := i + 1

		if err := importValidate.Struct(row); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %s", line, validationMessage(err)))
			continue
		}
		if rule.OptionCount == 4 && row.OptionD == "" {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: option_d failed notblank", line))
			continue
		}

		q := row.toQuestion(part)
		if !rule.Grouped {
			q.AudioURL = row.AudioURL
			q.ImageURL = row.ImageURL
			if err := ValidateQuestion(q, nil); err != nil {
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", line, err))
				continue
			}
			q.SortOrder = len(questions) + 1
			questions = append(questions, q)
			continue
		}

		key := row.GroupKey
		if key == "" {
			key = fmt.Sprintf("row-%d", line)
		}
		group, exists := groups[key]
		if !exists {
			group = &model.Question{
				Part:     part,
				IsGroup:  true,
				Passage:  row.Passage,
				AudioURL: row.AudioURL,
				ImageURL: row.ImageURL,
			}
			groups[key] = group
			groupLine[group] = line
			questions = append(questions, group)
		}
		q.SortOrder = len(group.Children) + 1
		group.Children = append(group.Children, *q)
	}

	valid := make([]*model.Question, 0, len(questions))
	for _, q := range questions {
		if q.IsGroup {
			if err := ValidateQuestion(q, nil); err != nil {
				result.Skipped += len(q.Children)
				result.Errors = append(result.Errors, fmt.Sprintf("Row %d (group): %v", groupLine[q], err))
				continue
			}
			result.Created += len(q.Children)
		} else {
			result.Created++
		}
		valid = append(valid, q)
	}

	if err := s.QuestionRepo.CreateBatch(valid); err != nil {
		return nil, err
	}

	logger.Log.Info("Questions imported",
		zap.Int("part", part),
		zap.Int("rows", result.TotalRows),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// Export 导出某一部分的全部题目，格式与导入一致
func (s *QuestionImportService) Export(part int, w io.Writer) error {
	if !model.IsValidPart(part) {
		return util.ErrInvalidPart
	}
	questions, err := s.QuestionRepo.ListByPart(part)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", questionSheet); err != nil {
		return err
	}

	header := make([]interface{}, len(questionColumns))
	for i, c := range questionColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(questionSheet, "A1", &header); err != nil {
		return err
	}

	line := 2
	writeRow := func(groupKey string, group, q *model.Question) error {
		values := exportValues(groupKey, group, q)
		cell, err := excelize.CoordinatesToCellName(1, line)
		if err != nil {
			return err
		}
		line++
		return f.SetSheetRow(questionSheet, cell, &values)
	}

	for i := range questions {
		q := &questions[i]
		if !q.IsGroup {
			if err := writeRow("", nil, q); err != nil {
				return err
			}
			continue
		}
		key := fmt.Sprintf("G%d", q.ID)
		for j := range q.Children {
			if err := writeRow(key, q, &q.Children[j]); err != nil {
				return err
			}
		}
	}

	return f.Write(w)
}

func exportValues(groupKey string, group, q *model.Question) []interface{} {
	options := make([]string, 4)
	correct := ""
	for i, a := range q.Answers {
		if i < len(options) {
			options[i] = a.Content
		}
		if a.IsCorrect {
			correct = a.Label
		}
	}
	passage, audio, image := q.Passage, q.AudioURL, q.ImageURL
	if group != nil {
		passage, audio, image = group.Passage, group.AudioURL, group.ImageURL
	}
	return []interface{}{
		groupKey, q.Content, passage,
		options[0], options[1], options[2], options[3], correct,
		q.Explanation, q.Topic, q.Category, q.GrammarTag, q.VocabularyTag,
		audio, image, q.Transcript,
	}
}
