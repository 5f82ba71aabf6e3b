package controller

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"toeic_backend/internal/model"
	"toeic_backend/internal/repository"
	"toeic_backend/internal/service"
	"toeic_backend/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newDepartmentRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	ctrl := NewDepartmentController(service.NewDepartmentService(repository.NewDepartmentRepository(db)))

	r := gin.New()
	r.GET("/departments", ctrl.ListDepartments)
	r.POST("/departments", ctrl.CreateDepartment)
	r.GET("/departments/:id", ctrl.GetDepartment)
	r.PUT("/departments/:id", ctrl.UpdateDepartment)
	r.DELETE("/departments/:id", ctrl.DeleteDepartment)
	return r, db
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDepartmentCRUD(t *testing.T) {
	r, db := newDepartmentRouter(t)

	w := doJSON(r, http.MethodPost, "/departments", DepartmentRequest{Code: " ops ", Name: "Operations"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Data model.Department `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "OPS", created.Data.Code)

	w = doJSON(r, http.MethodPost, "/departments", DepartmentRequest{Code: "OPS", Name: "Dup"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(r, http.MethodPost, "/departments", map[string]string{"name": "no code"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodGet, "/departments/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(r, http.MethodGet, "/departments/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodPut, "/departments/1", UpdateDepartmentRequest{Name: "Ops Team", Description: "d"})
	require.Equal(t, http.StatusOK, w.Code)
	var dept model.Department
	require.NoError(t, db.First(&dept, created.Data.ID).Error)
	assert.Equal(t, "Ops Team", dept.Name)

	// 有员工的部门不能删除
	deptID := created.Data.ID
	require.NoError(t, db.Create(&model.Employee{FullName: "E", Email: "e@example.com", Password: "x", DepartmentID: &deptID}).Error)
	w = doJSON(r, http.MethodDelete, "/departments/1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	require.NoError(t, db.Where("department_id = ?", deptID).Delete(&model.Employee{}).Error)
	w = doJSON(r, http.MethodDelete, "/departments/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/departments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []model.Department `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list.Data)
}
