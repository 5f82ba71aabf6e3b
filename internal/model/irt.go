package model

import "time"

const (
	IRTRunRunning = "running"
	IRTRunSuccess = "success"
	IRTRunFailed  = "failed"
	IRTRunSkipped = "skipped"
)

// IRTRun 每次 IRT 参数更新的运行记录
type IRTRun struct {
	BaseModel
	Status         string     `gorm:"size:20;index" json:"status"`
	Trigger        string     `gorm:"size:20" json:"trigger"`
	ResponseCount  int        `json:"responseCount"`
	ItemsUpdated   int        `json:"itemsUpdated"`
	MembersUpdated int        `json:"membersUpdated"`
	Message        string     `gorm:"type:text" json:"message"`
	StartedAt      time.Time  `json:"startedAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
}

func (IRTRun) TableName() string {
	return "irt_runs"
}

// IRTResponse 发往 Python 服务的一条作答记录
type IRTResponse struct {
	MemberID   uint `db:"member_id" json:"member_id"`
	QuestionID uint `db:"question_id" json:"question_id"`
	Part       int  `db:"part" json:"part"`
	Correct    bool `db:"is_correct" json:"correct"`
}

// IRTItemParams Python 服务回传的题目参数
type IRTItemParams struct {
	QuestionID     uint    `json:"question_id"`
	Difficulty     float64 `json:"difficulty"`
	Discrimination float64 `json:"discrimination"`
	Guessing       float64 `json:"guessing"`
	Quality        float64 `json:"quality"`
}

// IRTAbility Python 服务回传的会员能力值
type IRTAbility struct {
	MemberID uint    `json:"member_id"`
	Theta    float64 `json:"theta"`
}
