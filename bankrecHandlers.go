package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mmdatafocus/bankrec_backend/bankrec"
	"github.com/mmdatafocus/bankrec_backend/config"
	"github.com/mmdatafocus/bankrec_backend/middlewares"
	"github.com/mmdatafocus/bankrec_backend/models"
	"github.com/mmdatafocus/bankrec_backend/models/reports"
	"github.com/mmdatafocus/bankrec_backend/utils"
	"github.com/mmdatafocus/bankrec_backend/workflow"
	"gorm.io/gorm"
)

type bankrecHandlers struct {
	sessions  func() *workflow.SessionStore
	validator func() *workflow.Validator
}

type newSessionRequest struct {
	StatementLineId int `json:"statement_line_id" validate:"required,gt=0"`
}

type amlsRequest struct {
	AmlIds       []int `json:"aml_ids" validate:"required,min=1,dive,gt=0"`
	AllowPartial *bool `json:"allow_partial"`
}

type batchPaymentsRequest struct {
	BatchPaymentIds []int `json:"batch_payment_ids" validate:"required,min=1,dive,gt=0"`
}

type lineIdsRequest struct {
	LineIds []string `json:"line_ids" validate:"required,min=1,dive,required"`
}

type editLineRequest struct {
	AmountCurrency interface{} `json:"amount_currency" validate:"required"`
}

type restoreRequest struct {
	SessionId       string            `json:"session_id"`
	StatementLineId int               `json:"statement_line_id" validate:"required,gt=0"`
	Commands        []bankrec.Command `json:"commands" validate:"dive"`
}

// sessionView is the session as the widget renders it.
type sessionView struct {
	*bankrec.Session
	JournalName  string         `json:"journal_name"`
	AccountNames map[int]string `json:"account_names"`
	PartnerNames map[int]string `json:"partner_names"`
}

func registerBankrecRoutes(rg *gin.RouterGroup, h *bankrecHandlers) {
	rg.POST("/sessions", h.newSession)
	rg.POST("/restore", h.restore)

	s := rg.Group("/sessions/:id")
	s.GET("", h.getSession)
	s.DELETE("", h.discardSession)
	s.GET("/candidates", h.candidates)
	s.POST("/amls", h.addAmls)
	s.POST("/batch-payments/expand", h.expandBatchPayments)
	s.POST("/batch-payments/:batchId", h.addBatchPayment)
	s.DELETE("/batch-payments/:batchId", h.removeBatchPayment)
	s.POST("/lines/remove", h.removeLines)
	s.POST("/lines/manual", h.addManualLine)
	s.PATCH("/lines/:lineId", h.editLine)
	s.GET("/redirect/:index", h.redirect)
	s.POST("/validate", h.validate)
	s.GET("/export", h.export)
}

// errorStatus maps the workflow's error taxonomy to HTTP.
func errorStatus(err error) int {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, workflow.ErrSessionNotFound), errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrorBusinessIdRequired):
		return http.StatusUnauthorized
	case errors.Is(err, bankrec.ErrValidation), errors.As(err, &validationErrors):
		return http.StatusBadRequest
	case errors.Is(err, bankrec.ErrReconciliationConflict), errors.Is(err, workflow.ErrSessionBusy),
		errors.Is(err, workflow.ErrIdempotencyInProgress), errors.Is(err, workflow.ErrPostingLockBusy):
		return http.StatusConflict
	case errors.Is(err, models.ErrCurrencyRateMissing):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, funcName string, data interface{}, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		config.LogError(config.GetLogger(), "bankrecHandlers.go", funcName, c.FullPath(), data, err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(status, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// bindJSON decodes and validates the body, answering 400 itself when either fails.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	if err := utils.ValidateStruct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
		return false
	}
	return true
}

func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return v, true
}

func businessId(c *gin.Context) string {
	id, _ := utils.GetBusinessIdFromContext(c.Request.Context())
	return id
}

func (h *bankrecHandlers) engine(c *gin.Context) *bankrec.Engine {
	ctx := c.Request.Context()
	return h.validator().Engine(config.GetDB().WithContext(ctx), businessId(c))
}

// mutate runs fn on the stored session under its lock and answers the updated view.
func (h *bankrecHandlers) mutate(c *gin.Context, funcName string, data interface{}, fn func(*bankrec.Engine, *bankrec.Session) error) {
	ctx := c.Request.Context()
	session, err := h.sessions().Mutate(ctx, businessId(c), c.Param("id"), func(s *bankrec.Session) error {
		return fn(h.engine(c), s)
	})
	if err != nil {
		respondError(c, funcName, data, err)
		return
	}
	h.render(c, http.StatusOK, session)
}

func (h *bankrecHandlers) render(c *gin.Context, status int, s *bankrec.Session) {
	view, err := h.view(c, s)
	if err != nil {
		respondError(c, "render", s.ID, err)
		return
	}
	c.JSON(status, view)
}

func (h *bankrecHandlers) view(c *gin.Context, s *bankrec.Session) (*sessionView, error) {
	ctx := c.Request.Context()
	view := &sessionView{Session: s}

	journal, err := middlewares.GetJournal(ctx, s.JournalId)
	if err != nil {
		return nil, err
	}
	view.JournalName = journal.Name

	names, err := proposalNames(c, s)
	if err != nil {
		return nil, err
	}
	view.AccountNames = names.Accounts
	view.PartnerNames = names.Partners
	return view, nil
}

// proposalNames batches the account and partner lookups of all lines through the request loaders.
func proposalNames(c *gin.Context, s *bankrec.Session) (reports.ProposalNames, error) {
	ctx := c.Request.Context()
	var accountIds, partnerIds []int
	for _, l := range s.Lines {
		accountIds = append(accountIds, l.AccountId)
		if l.PartnerId != 0 {
			partnerIds = append(partnerIds, l.PartnerId)
		}
	}
	names := reports.ProposalNames{Accounts: map[int]string{}, Partners: map[int]string{}}

	accounts, errs := middlewares.GetAccounts(ctx, utils.SortedUniqueInts(accountIds))
	for i, a := range accounts {
		if errs != nil && errs[i] != nil {
			if errors.Is(errs[i], gorm.ErrRecordNotFound) {
				continue
			}
			return names, errs[i]
		}
		names.Accounts[a.ID] = a.Name
	}
	if len(partnerIds) == 0 {
		return names, nil
	}
	partners, errs := middlewares.GetPartners(ctx, utils.SortedUniqueInts(partnerIds))
	for i, p := range partners {
		if errs != nil && errs[i] != nil {
			if errors.Is(errs[i], gorm.ErrRecordNotFound) {
				continue
			}
			return names, errs[i]
		}
		names.Partners[p.ID] = p.Name
	}
	return names, nil
}

func (h *bankrecHandlers) newSession(c *gin.Context) {
	var req newSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	session, err := h.engine(c).NewSession(ctx, uuid.NewString(), req.StatementLineId)
	if err != nil {
		respondError(c, "newSession", req, err)
		return
	}
	if err := h.sessions().Save(ctx, session); err != nil {
		respondError(c, "newSession", req, err)
		return
	}
	h.render(c, http.StatusCreated, session)
}

func (h *bankrecHandlers) restore(c *gin.Context) {
	var req restoreRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.SessionId == "" {
		req.SessionId = uuid.NewString()
	}
	ctx := c.Request.Context()
	session, err := h.engine(c).Restore(ctx, req.SessionId, req.StatementLineId, req.Commands)
	if err != nil {
		respondError(c, "restore", req, err)
		return
	}
	if err := h.sessions().Save(ctx, session); err != nil {
		respondError(c, "restore", req, err)
		return
	}
	h.render(c, http.StatusCreated, session)
}

func (h *bankrecHandlers) getSession(c *gin.Context) {
	session, err := h.sessions().Load(c.Request.Context(), businessId(c), c.Param("id"))
	if err != nil {
		respondError(c, "getSession", c.Param("id"), err)
		return
	}
	h.render(c, http.StatusOK, session)
}

func (h *bankrecHandlers) discardSession(c *gin.Context) {
	ctx := c.Request.Context()
	store := h.sessions()
	if _, err := store.Load(ctx, businessId(c), c.Param("id")); err != nil {
		respondError(c, "discardSession", c.Param("id"), err)
		return
	}
	if err := store.Delete(ctx, businessId(c), c.Param("id")); err != nil {
		respondError(c, "discardSession", c.Param("id"), err)
		return
	}
	c.Status(http.StatusNoContent)
}

// candidates answers the fetcher output. batch_payment_ids narrows it; absent means every
// batch of the journal.
func (h *bankrecHandlers) candidates(c *gin.Context) {
	var batchIds []int
	for _, raw := range c.QueryArray("batch_payment_ids") {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch_payment_ids"})
			return
		}
		batchIds = append(batchIds, id)
	}

	session, err := h.sessions().Load(c.Request.Context(), businessId(c), c.Param("id"))
	if err != nil {
		respondError(c, "candidates", batchIds, err)
		return
	}
	available, err := h.engine(c).FetchAvailableAmlsInBatchPayments(c.Request.Context(), session, batchIds)
	if err != nil {
		respondError(c, "candidates", batchIds, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"available_amls": available})
}

func (h *bankrecHandlers) addAmls(c *gin.Context) {
	var req amlsRequest
	if !bindJSON(c, &req) {
		return
	}
	allowPartial := req.AllowPartial == nil || *req.AllowPartial
	h.mutate(c, "addAmls", req, func(e *bankrec.Engine, s *bankrec.Session) error {
		return e.AddNewAmls(c.Request.Context(), s, req.AmlIds, allowPartial)
	})
}

func (h *bankrecHandlers) addBatchPayment(c *gin.Context) {
	batchId, ok := intParam(c, "batchId")
	if !ok {
		return
	}
	h.mutate(c, "addBatchPayment", batchId, func(e *bankrec.Engine, s *bankrec.Session) error {
		return e.JsActionAddNewBatchPayment(c.Request.Context(), s, batchId)
	})
}

func (h *bankrecHandlers) removeBatchPayment(c *gin.Context) {
	batchId, ok := intParam(c, "batchId")
	if !ok {
		return
	}
	h.mutate(c, "removeBatchPayment", batchId, func(e *bankrec.Engine, s *bankrec.Session) error {
		return e.JsActionRemoveNewBatchPayment(c.Request.Context(), s, batchId)
	})
}

func (h *bankrecHandlers) expandBatchPayments(c *gin.Context) {
	var req batchPaymentsRequest
	if !bindJSON(c, &req) {
		return
	}
	h.mutate(c, "expandBatchPayments", req, func(e *bankrec.Engine, s *bankrec.Session) error {
		return e.ExpandBatchPayments(c.Request.Context(), s, req.BatchPaymentIds)
	})
}

func (h *bankrecHandlers) removeLines(c *gin.Context) {
	var req lineIdsRequest
	if !bindJSON(c, &req) {
		return
	}
	h.mutate(c, "removeLines", req, func(e *bankrec.Engine, s *bankrec.Session) error {
		return e.RemoveLines(c.Request.Context(), s, req.LineIds)
	})
}

func (h *bankrecHandlers) addManualLine(c *gin.Context) {
	var req bankrec.ManualLineInput
	if !bindJSON(c, &req) {
		return
	}
	h.mutate(c, "addManualLine", req, func(e *bankrec.Engine, s *bankrec.Session) error {
		_, err := e.AddManualLine(c.Request.Context(), s, req)
		return err
	})
}

// editLine takes amount_currency as a JSON number or a formatted string ("1,250.00").
func (h *bankrecHandlers) editLine(c *gin.Context) {
	var req editLineRequest
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
		return
	}
	amount, err := utils.ParseDecimal(req.AmountCurrency)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount_currency"})
		return
	}
	lineId := c.Param("lineId")
	h.mutate(c, "editLine", lineId, func(e *bankrec.Engine, s *bankrec.Session) error {
		return e.EditLineAmount(c.Request.Context(), s, lineId, amount)
	})
}

func (h *bankrecHandlers) redirect(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid index"})
		return
	}
	ctx := c.Request.Context()
	session, err := h.sessions().Load(ctx, businessId(c), c.Param("id"))
	if err != nil {
		respondError(c, "redirect", index, err)
		return
	}
	action, err := h.engine(c).JsActionRedirectToMove(ctx, session, index)
	if err != nil {
		respondError(c, "redirect", index, err)
		return
	}
	c.JSON(http.StatusOK, action)
}

func (h *bankrecHandlers) validate(c *gin.Context) {
	ctx := c.Request.Context()
	key := c.GetHeader("Idempotency-Key")
	var result *workflow.ValidationResult
	_, err := h.sessions().Mutate(ctx, businessId(c), c.Param("id"), func(s *bankrec.Session) error {
		var err error
		result, err = h.validator().ValidateSession(ctx, s, key)
		return err
	})
	if err != nil {
		respondError(c, "validate", c.Param("id"), err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *bankrecHandlers) export(c *gin.Context) {
	session, err := h.sessions().Load(c.Request.Context(), businessId(c), c.Param("id"))
	if err != nil {
		respondError(c, "export", c.Param("id"), err)
		return
	}
	names, err := proposalNames(c, session)
	if err != nil {
		respondError(c, "export", session.ID, err)
		return
	}
	var buf bytes.Buffer
	if err := reports.WriteProposal(&buf, session, names); err != nil {
		respondError(c, "export", session.ID, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+reports.ProposalFileName(session)+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
