package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/feedback"
	"github.com/Veraticus/finrules/internal/merchant"
	"github.com/Veraticus/finrules/internal/model"
	"github.com/Veraticus/finrules/internal/service"
)

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return false
	}
	return true
}

// GET /api/transactions?merchant=&category=&uncategorized=&limit=
func (h *Handler) ListTransactions(c *gin.Context) {
	filter := service.TransactionFilter{
		MerchantCanonical: merchant.Key(c.Query("merchant")),
		Category:          c.Query("category"),
		OnlyUncategorized: c.Query("uncategorized") == "true",
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			RespondError(c, http.StatusBadRequest, "invalid_input", fmt.Errorf("invalid limit %q", raw))
			return
		}
		filter.Limit = limit
	}

	txns, err := h.engine.ListTransactions(c.Request.Context(), filter)
	if err != nil {
		respondErr(c, err)
		return
	}
	if txns == nil {
		txns = []model.Transaction{}
	}
	RespondOK(c, gin.H{"transactions": txns})
}

// DELETE /api/transactions/:id
func (h *Handler) DeleteTransaction(c *gin.Context) {
	if err := h.engine.DeleteTransaction(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/transactions/:id/suggestions
func (h *Handler) SuggestCategories(c *gin.Context) {
	candidates, err := h.engine.Suggest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if candidates == nil {
		candidates = model.Candidates{}
	}
	RespondOK(c, gin.H{"candidates": candidates})
}

type categorizeRequest struct {
	Category string `json:"category" binding:"required"`
}

// POST /api/transactions/:id/category
func (h *Handler) CategorizeTransaction(c *gin.Context) {
	var req categorizeRequest
	if !bindJSON(c, &req) {
		return
	}
	txn, err := h.engine.CategorizeTransaction(c.Request.Context(), c.Param("id"), req.Category)
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, gin.H{"transaction": txn})
}

// GET /api/rules
func (h *Handler) ListRules(c *gin.Context) {
	rules, err := h.engine.ListRules(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	if rules == nil {
		rules = []model.Rule{}
	}
	RespondOK(c, gin.H{"rules": rules})
}

// POST /api/rules
func (h *Handler) CreateRule(c *gin.Context) {
	var rule model.Rule
	if !bindJSON(c, &rule) {
		return
	}
	rule.ID = 0
	created, err := h.engine.CreateRule(c.Request.Context(), rule)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"rule": created})
}

// GET /api/rules/:id
func (h *Handler) GetRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rule, err := h.engine.GetRule(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, gin.H{"rule": rule})
}

type ruleUpdateRequest struct {
	Name            *string          `json:"name"`
	MerchantLike    *string          `json:"merchant_like"`
	DescriptionLike *string          `json:"description_like"`
	IsRegex         *bool            `json:"is_regex"`
	Category        *string          `json:"category"`
	Priority        *int             `json:"priority"`
	Enabled         *bool            `json:"enabled"`
	AmountMin       *decimal.Decimal `json:"amount_min"`
	AmountMax       *decimal.Decimal `json:"amount_max"`
	ClearAmount     bool             `json:"clear_amount"`
}

func (r ruleUpdateRequest) patch() model.RulePatch {
	return model.RulePatch{
		Name:            r.Name,
		MerchantLike:    r.MerchantLike,
		DescriptionLike: r.DescriptionLike,
		IsRegex:         r.IsRegex,
		Category:        r.Category,
		Priority:        r.Priority,
		Enabled:         r.Enabled,
		AmountMin:       r.AmountMin,
		AmountMax:       r.AmountMax,
		ClearAmount:     r.ClearAmount,
	}
}

// PATCH /api/rules/:id
func (h *Handler) UpdateRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req ruleUpdateRequest
	if !bindJSON(c, &req) {
		return
	}
	rule, err := h.engine.UpdateRule(c.Request.Context(), id, req.patch())
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, gin.H{"rule": rule})
}

// DELETE /api/rules/:id
func (h *Handler) DeleteRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.engine.DeleteRule(c.Request.Context(), id); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type testRuleRequest struct {
	Rule   model.Rule `json:"rule"`
	Month  string     `json:"month"` // YYYY-MM
	Sample int        `json:"sample"`
}

// POST /api/rules/test
func (h *Handler) TestRule(c *gin.Context) {
	var req testRuleRequest
	if !bindJSON(c, &req) {
		return
	}

	var month *time.Time
	if req.Month != "" {
		m, err := time.Parse("2006-01", req.Month)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_month", fmt.Errorf("month must be YYYY-MM: %w", err))
			return
		}
		month = &m
	}

	result, err := h.engine.TestRule(c.Request.Context(), req.Rule, month, req.Sample)
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, result)
}

// GET /api/suggestions?status=
func (h *Handler) ListSuggestions(c *gin.Context) {
	suggestions, err := h.engine.ListSuggestions(c.Request.Context(), model.SuggestionStatus(c.Query("status")))
	if err != nil {
		respondErr(c, err)
		return
	}
	if suggestions == nil {
		suggestions = []model.RuleSuggestion{}
	}
	RespondOK(c, gin.H{"suggestions": suggestions})
}

// POST /api/suggestions/mine
func (h *Handler) MineSuggestions(c *gin.Context) {
	opts := h.engine.MiningOptions()
	if c.Request.ContentLength > 0 && !bindJSON(c, &opts) {
		return
	}
	result, err := h.engine.MineSuggestions(c.Request.Context(), opts)
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, result)
}

// POST /api/suggestions/:id/accept
func (h *Handler) AcceptSuggestion(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rule, err := h.engine.AcceptSuggestion(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, gin.H{"rule": rule})
}

// POST /api/suggestions/:id/dismiss
func (h *Handler) DismissSuggestion(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.engine.DismissSuggestion(c.Request.Context(), id); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/suggestions/ignores
func (h *Handler) ListIgnores(c *gin.Context) {
	ignores, err := h.engine.ListIgnores(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	if ignores == nil {
		ignores = []model.SuggestionIgnore{}
	}
	RespondOK(c, gin.H{"ignores": ignores})
}

type ignoreRequest struct {
	Merchant string `json:"merchant" binding:"required"`
	Category string `json:"category" binding:"required"`
}

// POST /api/suggestions/ignores
func (h *Handler) AddIgnore(c *gin.Context) {
	var req ignoreRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.engine.AddIgnore(c.Request.Context(), req.Merchant, req.Category); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DELETE /api/suggestions/ignores?merchant=&category=
func (h *Handler) RemoveIgnore(c *gin.Context) {
	if err := h.engine.RemoveIgnore(c.Request.Context(), c.Query("merchant"), c.Query("category")); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type feedbackRequest struct {
	RuleID        *int64               `json:"rule_id"`
	Merchant      string               `json:"merchant"`
	Category      string               `json:"category"`
	TransactionID string               `json:"transaction_id"`
	Action        model.FeedbackAction `json:"action"`
	Weight        int                  `json:"weight"`
}

// POST /api/feedback
func (h *Handler) RecordFeedback(c *gin.Context) {
	var req feedbackRequest
	if !bindJSON(c, &req) {
		return
	}
	err := h.engine.RecordFeedback(c.Request.Context(), feedback.Event{
		RuleID:        req.RuleID,
		Merchant:      req.Merchant,
		Category:      req.Category,
		TransactionID: req.TransactionID,
		Action:        req.Action,
		Weight:        req.Weight,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/feedback?merchant=
func (h *Handler) FeedbackStats(c *gin.Context) {
	merchant := c.Query("merchant")
	if merchant == "" {
		respondErr(c, fmt.Errorf("%w: merchant query parameter is required", common.ErrInvalidInput))
		return
	}
	stats, err := h.engine.FeedbackStats(c.Request.Context(), merchant)
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, gin.H{"merchant": merchant, "stats": stats})
}
