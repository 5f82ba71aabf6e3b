package model

import "time"

const (
	SectionListening = "listening"
	SectionReading   = "reading"
)

// PartRule TOEIC 各部分的题目结构约束
type PartRule struct {
	Part           int    `json:"part"`
	Name           string `json:"name"`
	Section        string `json:"section"`
	Grouped        bool   `json:"grouped"`
	OptionCount    int    `json:"optionCount"`
	RequireAudio   bool   `json:"requireAudio"`
	RequireImage   bool   `json:"requireImage"`
	RequirePassage bool   `json:"requirePassage"`
}

var PartRules = map[int]PartRule{
	1: {Part: 1, Name: "Photographs", Section: SectionListening, OptionCount: 4, RequireAudio: true, RequireImage: true},
	2: {Part: 2, Name: "Question-Response", Section: SectionListening, OptionCount: 3, RequireAudio: true},
	3: {Part: 3, Name: "Conversations", Section: SectionListening, Grouped: true, OptionCount: 4, RequireAudio: true},
	4: {Part: 4, Name: "Talks", Section: SectionListening, Grouped: true, OptionCount: 4, RequireAudio: true},
	5: {Part: 5, Name: "Incomplete Sentences", Section: SectionReading, OptionCount: 4},
	6: {Part: 6, Name: "Text Completion", Section: SectionReading, Grouped: true, OptionCount: 4, RequirePassage: true},
	7: {Part: 7, Name: "Reading Comprehension", Section: SectionReading, Grouped: true, OptionCount: 4, RequirePassage: true},
}

func IsValidPart(part int) bool {
	_, ok := PartRules[part]
	return ok
}

// swagger:model Question
type Question struct {
	BaseModel
	Part          int        `gorm:"index;not null" json:"part"`
	ParentID      *uint      `gorm:"index" json:"parentId,omitempty"`
	IsGroup       bool       `gorm:"default:false" json:"isGroup"`
	Content       string     `gorm:"type:text" json:"content"`
	Passage       string     `gorm:"type:text" json:"passage,omitempty"`
	ImageURL      string     `gorm:"size:255" json:"imageUrl,omitempty"`
	AudioURL      string     `gorm:"size:255" json:"audioUrl,omitempty"`
	Transcript    string     `gorm:"type:text" json:"transcript,omitempty"`
	Explanation   string     `gorm:"type:text" json:"explanation,omitempty"`
	Topic         string     `gorm:"size:100;index" json:"topic"`
	Category      string     `gorm:"size:100" json:"category"`
	GrammarTag    string     `gorm:"size:100" json:"grammarTag"`
	VocabularyTag string     `gorm:"size:100" json:"vocabularyTag"`
	SortOrder     int        `gorm:"default:0" json:"sortOrder"`
	Answers       []Answer   `gorm:"foreignKey:QuestionID" json:"answers,omitempty"`
	Children      []Question `gorm:"foreignKey:ParentID" json:"children,omitempty"`

	// IRT 参数，由 Python 服务校准后回写
	Difficulty     *float64   `gorm:"index" json:"difficulty"`
	Discrimination *float64   `json:"discrimination"`
	Guessing       *float64   `json:"guessing"`
	Quality        *float64   `json:"quality"`
	CalibratedAt   *time.Time `json:"calibratedAt,omitempty"`
}

func (Question) TableName() string {
	return "questions"
}

// Tags 返回错题分析用的标签快照
func (q *Question) Tags() QuestionTags {
	return QuestionTags{
		Topic:         q.Topic,
		Category:      q.Category,
		GrammarTag:    q.GrammarTag,
		VocabularyTag: q.VocabularyTag,
	}
}

// CorrectAnswerID 返回正确选项 ID，不存在时为 0
func (q *Question) CorrectAnswerID() uint {
	for _, a := range q.Answers {
		if a.IsCorrect {
			return a.ID
		}
	}
	return 0
}

type QuestionTags struct {
	Topic         string `gorm:"size:100" json:"topic"`
	Category      string `gorm:"size:100" json:"category"`
	GrammarTag    string `gorm:"size:100" json:"grammarTag"`
	VocabularyTag string `gorm:"size:100" json:"vocabularyTag"`
}

// swagger:model Answer
type Answer struct {
	BaseModel
	QuestionID uint   `gorm:"index;not null" json:"questionId"`
	Label      string `gorm:"size:2;not null" json:"label"`
	Content    string `gorm:"type:text" json:"content"`
	IsCorrect  bool   `gorm:"default:false" json:"isCorrect"`
}

func (Answer) TableName() string {
	return "answers"
}
