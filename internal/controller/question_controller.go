package controller

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"toeic_backend/internal/repository"
	"toeic_backend/internal/service"
	"toeic_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// 单次导入文件大小上限
const maxImportSize = 10 << 20

type QuestionController struct {
	QuestionService *service.QuestionService
	ImportService   *service.QuestionImportService
}

func NewQuestionController(questionService *service.QuestionService, importService *service.QuestionImportService) *QuestionController {
	return &QuestionController{QuestionService: questionService, ImportService: importService}
}

func parsePart(ctx *gin.Context) (int, bool) {
	part, err := strconv.Atoi(ctx.Query("part"))
	if err != nil || part < 1 || part > 7 {
		return 0, false
	}
	return part, true
}

// ListQuestions godoc
// @Summary 题目列表
// @Tags 题库管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   part query int false "TOEIC Part 1-7"
// @Param   keyword query string false "关键字"
// @Param   parentId query int false "题组ID，只看该题组的小题"
// @Param   topLevel query bool false "仅顶层题目"
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/admin/questions [get]
func (c *QuestionController) ListQuestions(ctx *gin.Context) {
	page, limit := util.GetPage(ctx)
	f := repository.QuestionFilter{
		Keyword:  ctx.Query("keyword"),
		TopLevel: ctx.Query("topLevel") == "true",
		Page:     page,
		Limit:    limit,
	}
	if ctx.Query("part") != "" {
		part, ok := parsePart(ctx)
		if !ok {
			util.HandleError(ctx, util.ErrInvalidPart)
			return
		}
		f.Part = part
	}
	if pid := util.MustParseUint(ctx.Query("parentId")); pid != 0 {
		f.ParentID = &pid
	}

	questions, total, err := c.QuestionService.List(f)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: questions, Total: total, Page: page, Limit: limit})
}

// GetQuestion godoc
// @Summary 题目详情
// @Tags 题库管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "题目ID"
// @Success 200 {object} util.Response{data=model.Question} "成功"
// @Failure 404 {object} util.Response "题目不存在"
// @Router /api/admin/questions/{id} [get]
func (c *QuestionController) GetQuestion(ctx *gin.Context) {
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的题目ID")
		return
	}
	q, err := c.QuestionService.Get(id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, q)
}

// CreateQuestion godoc
// @Summary 创建题目
// @Description 题组类 Part（3/4/6/7）可在 children 中一并提交小题
// @Tags 题库管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.QuestionInput true "题目"
// @Success 201 {object} util.Response{data=model.Question} "创建成功"
// @Failure 400 {object} util.Response "题目结构不符合 Part 规则"
// @Router /api/admin/questions [post]
func (c *QuestionController) CreateQuestion(ctx *gin.Context) {
	var in service.QuestionInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	q, err := c.QuestionService.Create(in)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, q)
}

// UpdateQuestion godoc
// @Summary 更新题目
// @Tags 题库管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "题目ID"
// @Param   body body service.QuestionInput true "题目"
// @Success 200 {object} util.Response{data=model.Question} "成功"
// @Router /api/admin/questions/{id} [put]
func (c *QuestionController) UpdateQuestion(ctx *gin.Context) {
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的题目ID")
		return
	}
	var in service.QuestionInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	q, err := c.QuestionService.Update(id, in)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, q)
}

// DeleteQuestion godoc
// @Summary 删除题目
// @Description 删除题组时一并删除小题与选项
// @Tags 题库管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "题目ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/admin/questions/{id} [delete]
func (c *QuestionController) DeleteQuestion(ctx *gin.Context) {
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的题目ID")
		return
	}
	if err := c.QuestionService.Delete(id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

func mediaKind(ctx *gin.Context) (service.MediaKind, bool) {
	switch kind := service.MediaKind(ctx.DefaultQuery("kind", ctx.PostForm("kind"))); kind {
	case service.MediaImage, service.MediaAudio:
		return kind, true
	default:
		return "", false
	}
}

// UploadQuestionMedia godoc
// @Summary 上传题目媒体
// @Description 上传图片或听力音频并绑定到题目
// @Tags 题库管理
// @Accept  multipart/form-data
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "题目ID"
// @Param   kind formData string true "image 或 audio"
// @Param   file formData file true "媒体文件"
// @Success 200 {object} util.Response{data=object} "成功"
// @Router /api/admin/questions/{id}/media [post]
func (c *QuestionController) UploadQuestionMedia(ctx *gin.Context) {
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的题目ID")
		return
	}
	kind, ok := mediaKind(ctx)
	if !ok {
		util.BadRequest(ctx, "kind 必须为 image 或 audio")
		return
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "请选择要上传的文件")
		return
	}

	url, err := c.QuestionService.UploadMedia(ctx.Request.Context(), id, kind, fh)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"url": url})
}

// UploadMedia godoc
// @Summary 预上传媒体
// @Description 题目创建前先上传媒体获取地址
// @Tags 题库管理
// @Accept  multipart/form-data
// @Produce  json
// @Security ApiKeyAuth
// @Param   part query int true "TOEIC Part"
// @Param   kind formData string true "image 或 audio"
// @Param   file formData file true "媒体文件"
// @Success 200 {object} util.Response{data=object} "成功"
// @Router /api/admin/questions/media [post]
func (c *QuestionController) UploadMedia(ctx *gin.Context) {
	part, ok := parsePart(ctx)
	if !ok {
		util.HandleError(ctx, util.ErrInvalidPart)
		return
	}
	kind, ok := mediaKind(ctx)
	if !ok {
		util.BadRequest(ctx, "kind 必须为 image 或 audio")
		return
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "请选择要上传的文件")
		return
	}

	url, err := c.QuestionService.StoreMedia(ctx.Request.Context(), part, kind, fh)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"url": url})
}

// ImportQuestions godoc
// @Summary 批量导入题目
// @Description 从 xlsx 导入指定 Part 的题目，题组类按 group_key 分组；无效行跳过并返回原因
// @Tags 题库管理
// @Accept  multipart/form-data
// @Produce  json
// @Security ApiKeyAuth
// @Param   part query int true "TOEIC Part"
// @Param   file formData file true "xlsx 文件"
// @Success 200 {object} util.Response{data=service.ImportResult} "成功"
// @Router /api/admin/questions/import [post]
func (c *QuestionController) ImportQuestions(ctx *gin.Context) {
	part, ok := parsePart(ctx)
	if !ok {
		util.HandleError(ctx, util.ErrInvalidPart)
		return
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "请选择要导入的文件")
		return
	}
	if fh.Size > maxImportSize {
		util.BadRequest(ctx, "文件过大")
		return
	}
	file, err := fh.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer file.Close()

	res, err := c.ImportService.Import(part, file)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// ExportQuestions godoc
// @Summary 导出题目
// @Description 导出指定 Part 的题目为 xlsx，格式与导入模板一致
// @Tags 题库管理
// @Produce  application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security ApiKeyAuth
// @Param   part query int true "TOEIC Part"
// @Success 200 {file} file "xlsx 文件"
// @Router /api/admin/questions/export [get]
func (c *QuestionController) ExportQuestions(ctx *gin.Context) {
	part, ok := parsePart(ctx)
	if !ok {
		util.HandleError(ctx, util.ErrInvalidPart)
		return
	}

	var buf bytes.Buffer
	if err := c.ImportService.Export(part, &buf); err != nil {
		util.HandleError(ctx, err)
		return
	}
	filename := fmt.Sprintf("toeic_part%d_%s.xlsx", part, time.Now().Format("20060102"))
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	ctx.Data(http.StatusOK, util.MimeXLSX, buf.Bytes())
}
