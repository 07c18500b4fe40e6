package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	pricingdomain "github.com/quotabl/quotabl/internal/pricing/domain"
)

type calculatePriceRequest struct {
	ArticleCode  string   `json:"article_code"`
	CustomerCode string   `json:"customer_code"`
	Quantity     float64  `json:"quantity"`
	SupplierCost *float64 `json:"supplier_cost,omitempty"`

	SupplierCode  string   `json:"supplier_code,omitempty"`
	SupplierName  string   `json:"supplier_name,omitempty"`
	LeadTimeDays  *int     `json:"lead_time_days,omitempty"`
	TransportCost *float64 `json:"transport_cost,omitempty"`

	MarginPercent    float64 `json:"margin_percent,omitempty"`
	ForceRecalculate bool    `json:"force_recalculate,omitempty"`

	SourceMessageID string `json:"source_message_id,omitempty"`
	SourceSubject   string `json:"source_subject,omitempty"`
	RequestedBy     string `json:"requested_by,omitempty"`
}

func (s *Server) CalculatePrice(c *gin.Context) {
	var req calculatePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	decision, err := s.pricingSvc.CalculatePrice(c.Request.Context(), pricingdomain.PricingContext{
		ArticleCode:      strings.TrimSpace(req.ArticleCode),
		CustomerCode:     strings.TrimSpace(req.CustomerCode),
		Quantity:         req.Quantity,
		SupplierCost:     req.SupplierCost,
		SupplierCode:     req.SupplierCode,
		SupplierName:     req.SupplierName,
		LeadTimeDays:     req.LeadTimeDays,
		TransportCost:    req.TransportCost,
		MarginPercent:    req.MarginPercent,
		ForceRecalculate: req.ForceRecalculate,
		SourceMessageID:  req.SourceMessageID,
		SourceSubject:    req.SourceSubject,
		RequestedBy:      req.RequestedBy,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": decision})
}

func (s *Server) GetDecision(c *gin.Context) {
	decision, err := s.pricingSvc.GetDecision(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": decision})
}

func (s *Server) ListDecisions(c *gin.Context) {
	filter := pricingdomain.ListFilter{
		ArticleCode:  c.Query("article_code"),
		CustomerCode: c.Query("customer_code"),
		Case:         c.Query("case"),
	}
	if raw := c.Query("requires_validation"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		filter.RequiresValidation = &v
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		filter.Since = &since
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		filter.Limit = limit
	}

	decisions, err := s.pricingSvc.ListDecisions(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": decisions})
}

type overrideDecisionRequest struct {
	UnitPrice     float64 `json:"unit_price"`
	MarginPercent float64 `json:"margin_percent,omitempty"`
	Justification string  `json:"justification"`
	OverriddenBy  string  `json:"overridden_by"`
}

func (s *Server) OverrideDecision(c *gin.Context) {
	var req overrideDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	decision, err := s.pricingSvc.ManualOverride(c.Request.Context(), c.Param("id"), pricingdomain.OverrideRequest{
		UnitPrice:     req.UnitPrice,
		MarginPercent: req.MarginPercent,
		Justification: strings.TrimSpace(req.Justification),
		OverriddenBy:  strings.TrimSpace(req.OverriddenBy),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": decision})
}

func (s *Server) PricingStatistics(c *gin.Context) {
	windowDays := 30
	if raw := c.Query("window_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		windowDays = parsed
	}

	stats, err := s.pricingSvc.Statistics(c.Request.Context(), windowDays)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
