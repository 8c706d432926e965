package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/shopspring/decimal"

	"github.com/ashmitsharp/homeledger-api/internal/logger"
	"github.com/ashmitsharp/homeledger-api/internal/models"
	"github.com/ashmitsharp/homeledger-api/internal/utils"
)

// RulesHandler exposes the classification rule set
type RulesHandler struct {
	rules    RuleSource
	importer Importer
}

// NewRulesHandler creates a rules handler
func NewRulesHandler(rules RuleSource, importer Importer) *RulesHandler {
	return &RulesHandler{rules: rules, importer: importer}
}

// GetRules returns the active rule list in evaluation order
// GET /v1/rules
func (h *RulesHandler) GetRules(c fiber.Ctx) error {
	rules := h.rules.Rules()
	return utils.SuccessResponse(c, fiber.Map{
		"version":          rules.Version,
		"rules":            rules.Rules,
		"ambiguity_groups": rules.Groups,
		"last_loaded":      h.rules.LastLoaded(),
	})
}

// ReloadRules re-reads the rules file. A broken file leaves the old rules active.
// POST /v1/rules/reload
func (h *RulesHandler) ReloadRules(c fiber.Ctx) error {
	rules, err := h.rules.Reload()
	if err != nil {
		return utils.NewUnprocessableError("rules file rejected, previous rules still active", err.Error())
	}

	log := logger.FromContext(c.Context())
	log.Info().Str("version", rules.Version).Int("rules", len(rules.Rules)).Msg("rules reloaded")

	return utils.SuccessResponse(c, fiber.Map{
		"version": rules.Version,
		"rules":   len(rules.Rules),
	})
}

// ClassifyRequest is the body for Classify
type ClassifyRequest struct {
	Description string           `json:"description"`
	Amount      decimal.Decimal  `json:"amount"`
	Direction   models.Direction `json:"direction"`
}

// Classify dry-runs the rules over one description and amount
// POST /v1/rules/classify
func (h *RulesHandler) Classify(c fiber.Ctx) error {
	var req ClassifyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return utils.NewBadRequestError("invalid request body", nil)
	}
	if strings.TrimSpace(req.Description) == "" {
		return utils.NewBadRequestError("description is required", nil)
	}
	if req.Direction == "" {
		req.Direction = models.DirectionExpense
	}
	if req.Direction != models.DirectionExpense && req.Direction != models.DirectionIncome {
		return utils.NewBadRequestError("direction must be expense or income", nil)
	}

	result, err := h.importer.Classify(c.Context(), req.Description, req.Amount, req.Direction)
	if err != nil {
		return utils.NewInternalError(err)
	}
	return utils.SuccessResponse(c, result)
}
