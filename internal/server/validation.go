package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	validationdomain "github.com/quotabl/quotabl/internal/validation/domain"
)

func (s *Server) ListValidations(c *gin.Context) {
	filter := validationdomain.ListFilter{
		Status:   validationdomain.Status(c.Query("status")),
		Priority: validationdomain.Priority(c.Query("priority")),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		filter.Limit = limit
	}

	requests, err := s.validationSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": requests})
}

func (s *Server) GetValidation(c *gin.Context) {
	request, err := s.validationSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": request})
}

type decideValidationRequest struct {
	Status         string   `json:"status"`
	ApprovedPrice  *float64 `json:"approved_price,omitempty"`
	ApprovedMargin *float64 `json:"approved_margin,omitempty"`
	Comment        string   `json:"comment,omitempty"`
	ValidatedBy    string   `json:"validated_by"`
}

func (s *Server) DecideValidation(c *gin.Context) {
	var req decideValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	request, err := s.validationSvc.Decide(c.Request.Context(), c.Param("id"), validationdomain.VerdictRequest{
		Status:         validationdomain.Status(strings.ToLower(strings.TrimSpace(req.Status))),
		ApprovedPrice:  req.ApprovedPrice,
		ApprovedMargin: req.ApprovedMargin,
		Comment:        req.Comment,
		ValidatedBy:    strings.TrimSpace(req.ValidatedBy),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": request})
}

func (s *Server) ExpireValidations(c *gin.Context) {
	expired, err := s.validationSvc.ExpireStale(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"expired": expired}})
}

func (s *Server) ValidationStatistics(c *gin.Context) {
	windowDays := 30
	if raw := c.Query("window_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		windowDays = parsed
	}

	stats, err := s.validationSvc.Statistics(c.Request.Context(), windowDays)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
