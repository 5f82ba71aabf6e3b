package model

import "time"

const (
	TestTypeFull     = "full"
	TestTypePart     = "part"
	TestTypePractice = "practice"

	ResultInProgress = "in_progress"
	ResultCompleted  = "completed"
)

// swagger:model Test
type Test struct {
	BaseModel
	Title           string        `gorm:"size:255;not null" json:"title"`
	Type            string        `gorm:"size:20;index;default:'full'" json:"type"`
	Part            *int          `json:"part,omitempty"`
	DurationMinutes int           `gorm:"default:0" json:"durationMinutes"`
	IsPublished     bool          `gorm:"default:false" json:"isPublished"`
	PublishedAt     *time.Time    `json:"publishedAt,omitempty"`
	CreatorID       uint          `gorm:"index" json:"creatorId"`
	CreatorKind     AccountKind   `gorm:"size:20" json:"creatorKind"`
	Contents        []TestContent `gorm:"foreignKey:TestID" json:"contents,omitempty"`
}

func (Test) TableName() string {
	return "tests"
}

// TestContent 试卷与题目的关联（ContentOfTest）
type TestContent struct {
	ID         uint     `gorm:"primaryKey;autoIncrement" json:"id"`
	TestID     uint     `gorm:"index;not null" json:"testId"`
	QuestionID uint     `gorm:"index;not null" json:"questionId"`
	Question   Question `gorm:"foreignKey:QuestionID" json:"question"`
	SortOrder  int      `gorm:"default:0" json:"sortOrder"`
}

func (TestContent) TableName() string {
	return "test_contents"
}

// TestResult 会员的一次作答记录（ResultOfUserForTest）
// swagger:model TestResult
type TestResult struct {
	BaseModel
	MemberID       uint         `gorm:"index;not null" json:"memberId"`
	TestID         uint         `gorm:"index;not null" json:"testId"`
	Test           *Test        `gorm:"foreignKey:TestID" json:"test,omitempty"`
	Status         string       `gorm:"size:20;index;default:'in_progress'" json:"status"`
	StartedAt      time.Time    `json:"startedAt"`
	CompletedAt    *time.Time   `json:"completedAt,omitempty"`
	CorrectCount   int          `gorm:"default:0" json:"correctCount"`
	TotalCount     int          `gorm:"default:0" json:"totalCount"`
	ListeningScore int          `gorm:"default:0" json:"listeningScore"`
	ReadingScore   int          `gorm:"default:0" json:"readingScore"`
	TotalScore     int          `gorm:"default:0" json:"totalScore"`
	Answers        []UserAnswer `gorm:"foreignKey:ResultID" json:"answers,omitempty"`
}

func (TestResult) TableName() string {
	return "test_results"
}

type UserAnswer struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ResultID   uint      `gorm:"uniqueIndex:idx_result_question;not null" json:"resultId"`
	QuestionID uint      `gorm:"uniqueIndex:idx_result_question;not null" json:"questionId"`
	MemberID   uint      `gorm:"index;not null" json:"memberId"`
	AnswerID   *uint     `json:"answerId"`
	IsCorrect  bool      `gorm:"default:false" json:"isCorrect"`
	AnsweredAt time.Time `gorm:"index" json:"answeredAt"`
}

func (UserAnswer) TableName() string {
	return "user_answers"
}

// UserError 错题记录（UsersError），用于自适应练习的错误模式加权
type UserError struct {
	ID         uint `gorm:"primaryKey;autoIncrement" json:"id"`
	MemberID   uint `gorm:"index:idx_member_part;not null" json:"memberId"`
	Part       int  `gorm:"index:idx_member_part;not null" json:"part"`
	QuestionID uint `gorm:"index;not null" json:"questionId"`
	ResultID   uint `gorm:"index" json:"resultId"`
	QuestionTags
	Resolved  bool      `gorm:"default:false;index" json:"resolved"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

func (UserError) TableName() string {
	return "user_errors"
}
