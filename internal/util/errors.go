package util

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrAccountDisabled        = errors.New("account disabled")
	ErrEmailRegistered        = errors.New("email already registered")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrMemberNotFound         = errors.New("member not found")
	ErrEmployeeNotFound       = errors.New("employee not found")
	ErrDepartmentNotFound     = errors.New("department not found")
	ErrDepartmentCodeTaken    = errors.New("department code already exists")
	ErrDepartmentInUse        = errors.New("department still has employees")
	ErrQuestionNotFound       = errors.New("question not found")
	ErrInvalidPart            = errors.New("invalid TOEIC part")
	ErrInvalidQuestion        = errors.New("invalid question")
	ErrTestNotFound           = errors.New("test not found")
	ErrTestNotPublished       = errors.New("test not published")
	ErrResultNotFound         = errors.New("result not found")
	ErrResultAlreadySubmitted = errors.New("result already submitted")
	ErrResultInProgress       = errors.New("result not submitted yet")
	ErrNoPracticeQuestions    = errors.New("no practice questions available")
	ErrConversationNotFound   = errors.New("conversation not found")
	ErrNotConversationMember  = errors.New("not a member of this conversation")
	ErrInvalidChatTarget      = errors.New("invalid chat target")
	ErrNotGroupConversation   = errors.New("operation only allowed in group conversations")
	ErrIRTServiceUnavailable  = errors.New("IRT service unavailable")
	ErrIRTRunInProgress       = errors.New("IRT update already running")
	ErrAIUnavailable          = errors.New("AI service not configured")
	ErrAIUpstream             = errors.New("AI service request failed")
)

var errorStatus = map[error]int{
	ErrInvalidCredentials:     http.StatusUnauthorized,
	ErrAccountDisabled:        http.StatusForbidden,
	ErrPermissionDenied:       http.StatusForbidden,
	ErrNotConversationMember:  http.StatusForbidden,
	ErrEmailRegistered:        http.StatusConflict,
	ErrDepartmentCodeTaken:    http.StatusConflict,
	ErrDepartmentInUse:        http.StatusConflict,
	ErrResultAlreadySubmitted: http.StatusConflict,
	ErrIRTRunInProgress:       http.StatusConflict,
	ErrResultInProgress:       http.StatusConflict,
	ErrMemberNotFound:         http.StatusNotFound,
	ErrEmployeeNotFound:       http.StatusNotFound,
	ErrDepartmentNotFound:     http.StatusNotFound,
	ErrQuestionNotFound:       http.StatusNotFound,
	ErrTestNotFound:           http.StatusNotFound,
	ErrResultNotFound:         http.StatusNotFound,
	ErrConversationNotFound:   http.StatusNotFound,
	ErrTestNotPublished:       http.StatusForbidden,
	ErrInvalidPart:            http.StatusBadRequest,
	ErrInvalidChatTarget:      http.StatusBadRequest,
	ErrNotGroupConversation:   http.StatusBadRequest,
	ErrInvalidQuestion:        http.StatusBadRequest,
	ErrNoPracticeQuestions:    http.StatusNotFound,
	ErrIRTServiceUnavailable:  http.StatusServiceUnavailable,
	ErrAIUnavailable:          http.StatusServiceUnavailable,
	ErrAIUpstream:             http.StatusBadGateway,
}

// HandleError 将业务错误映射为统一响应，未知错误记录日志后返回 500
func HandleError(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		NotFound(c)
		return
	}
	for target, status := range errorStatus {
		if errors.Is(err, target) {
			Error(c, status, err.Error())
			return
		}
	}
	LogInternalError(c, err)
}
