package service

import (
	"bytes"
	"testing"

	"toeic_backend/internal/model"
	"toeic_backend/internal/repository"
	"toeic_backend/internal/testutil"
	"toeic_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func options(n int, correct string) []model.Answer {
	answers := make([]model.Answer, n)
	for i := range answers {
		label := string(rune('A' + i))
		answers[i] = model.Answer{Label: label, Content: "option " + label, IsCorrect: label == correct}
	}
	return answers
}

func TestValidateQuestion(t *testing.T) {
	pid := uint(1)
	group7 := &model.Question{Part: 7, IsGroup: true}
	group7.ID = pid

	tests := []struct {
		name    string
		q       *model.Question
		parent  *model.Question
		wantErr error
	}{
		{"invalid part", &model.Question{Part: 8}, nil, util.ErrInvalidPart},
		{"part 5 ok", &model.Question{Part: 5, Answers: options(4, "B")}, nil, nil},
		{"part 2 needs three options", &model.Question{Part: 2, AudioURL: "a.mp3", Answers: options(4, "A")}, nil, util.ErrInvalidQuestion},
		{"part 2 ok", &model.Question{Part: 2, AudioURL: "a.mp3", Answers: options(3, "C")}, nil, nil},
		{"part 1 needs image", &model.Question{Part: 1, AudioURL: "a.mp3", Answers: options(4, "A")}, nil, util.ErrInvalidQuestion},
		{"two correct answers", &model.Question{Part: 5, Answers: []model.Answer{
			{Label: "A", IsCorrect: true}, {Label: "B", IsCorrect: true}, {Label: "C"}, {Label: "D"},
		}}, nil, util.ErrInvalidQuestion},
		{"duplicate labels", &model.Question{Part: 5, Answers: []model.Answer{
			{Label: "A", IsCorrect: true}, {Label: "A"}, {Label: "C"}, {Label: "D"},
		}}, nil, util.ErrInvalidQuestion},
		{"part 7 must be grouped", &model.Question{Part: 7, Answers: options(4, "A")}, nil, util.ErrInvalidQuestion},
		{"part 7 group needs passage", &model.Question{Part: 7, IsGroup: true, Children: []model.Question{
			{Part: 7, Answers: options(4, "A")},
		}}, nil, util.ErrInvalidQuestion},
		{"part 7 group ok", &model.Question{Part: 7, IsGroup: true, Passage: "Memo", Children: []model.Question{
			{Part: 7, Answers: options(4, "A")},
			{Part: 7, Answers: options(4, "D")},
		}}, nil, nil},
		{"child of group ok", &model.Question{Part: 7, ParentID: &pid, Answers: options(4, "A")}, group7, nil},
		{"child part mismatch", &model.Question{Part: 6, ParentID: &pid, Answers: options(4, "A")}, group7, util.ErrInvalidQuestion},
		{"part 5 cannot be a group", &model.Question{Part: 5, IsGroup: true}, nil, util.ErrInvalidQuestion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuestion(tt.q, tt.parent)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestQuestionServiceCreateGroup(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewQuestionService(repository.NewQuestionRepository(db), nil)

	in := QuestionInput{
		Part:    6,
		Passage: "Dear customer, ...",
		Children: []QuestionInput{
			{Answers: []AnswerInput{{Label: "a", IsCorrect: true}, {Label: "b"}, {Label: "c"}, {Label: "d"}}},
			{Answers: []AnswerInput{{Label: "a"}, {Label: "b", IsCorrect: true}, {Label: "c"}, {Label: "d"}}},
		},
	}
	q, err := svc.Create(in)
	require.NoError(t, err)
	assert.True(t, q.IsGroup)
	require.Len(t, q.Children, 2)
	assert.Equal(t, 6, q.Children[1].Part)
	assert.Equal(t, 2, q.Children[1].SortOrder)
	assert.Equal(t, "B", q.Children[1].Answers[1].Label)
	assert.Equal(t, q.Children[1].Answers[1].ID, q.Children[1].CorrectAnswerID())

	_, err = svc.Update(q.ID, QuestionInput{Part: 7, Passage: "x"})
	assert.ErrorIs(t, err, util.ErrInvalidQuestion)

	_, err = svc.Get(9999)
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)
}

func writeSheet(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	header := make([]interface{}, len(questionColumns))
	for i, c := range questionColumns {
		header[i] = c
	}
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &header))
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	buf := &bytes.Buffer{}
	require.NoError(t, f.Write(buf))
	return buf
}

func TestImportPart5(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewQuestionRepository(db)
	svc := NewQuestionImportService(repo)

	buf := writeSheet(t, [][]interface{}{
		{"", "She ___ the report yesterday.", "", "finish", "finished", "finishing", "finishes", "b", "", "office", "grammar", "past tense"},
		{"", "Missing correct", "", "a", "b", "c", "d", ""},
		{"", "Missing option d", "", "a", "b", "c", "", "A"},
		{},
	})

	res, err := svc.Import(5, buf)
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalRows)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 2, res.Skipped)
	assert.Len(t, res.Errors, 2)

	qs, err := repo.ListByPart(5)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, "past tense", qs[0].GrammarTag)
	assert.Equal(t, "B", qs[0].Answers[1].Label)
	assert.True(t, qs[0].Answers[1].IsCorrect)
}

func TestImportExportGroupedRoundTrip(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewQuestionRepository(db)
	svc := NewQuestionImportService(repo)

	buf := writeSheet(t, [][]interface{}{
		{"g1", "What is the memo about?", "MEMO: the office will close early.", "A", "B", "C", "D", "A", "", "office"},
		{"g1", "When will it close?", "", "1pm", "2pm", "3pm", "4pm", "C"},
		{"g2", "Orphan group without passage", "", "a", "b", "c", "d", "D"},
	})
	res, err := svc.Import(7, buf)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Skipped)

	out := &bytes.Buffer{}
	require.NoError(t, svc.Export(7, out))

	f, err := excelize.OpenReader(out)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(questionSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, questionColumns[0], rows[0][0])
	assert.Equal(t, rows[1][0], rows[2][0])
	assert.Equal(t, "MEMO: the office will close early.", rows[1][2])
	assert.Equal(t, "When will it close?", rows[2][1])
	assert.Equal(t, "C", rows[2][7])

	// 导出文件可再次导入
	again := &bytes.Buffer{}
	require.NoError(t, svc.Export(7, again))
	res, err = svc.Import(7, again)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)

	_, err = svc.Import(9, bytes.NewReader(nil))
	assert.ErrorIs(t, err, util.ErrInvalidPart)
}
