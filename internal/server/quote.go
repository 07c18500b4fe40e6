package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	quotedomain "github.com/quotabl/quotabl/internal/quote/domain"
)

type createQuoteRequest struct {
	CustomerCode string `json:"customer_code"`
	CustomerName string `json:"customer_name,omitempty"`
	Currency     string `json:"currency,omitempty"`

	Lines []struct {
		ArticleCode  string  `json:"article_code"`
		Quantity     float64 `json:"quantity"`
		SupplierCode string  `json:"supplier_code,omitempty"`
	} `json:"lines"`

	MarginPercent float64 `json:"margin_percent,omitempty"`
	RequestedBy   string  `json:"requested_by,omitempty"`

	SourceMessageID string `json:"source_message_id,omitempty"`
	SourceSubject   string `json:"source_subject,omitempty"`
}

func (s *Server) CreateQuote(c *gin.Context) {
	var req createQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	quoteReq := quotedomain.QuoteRequest{
		CustomerCode:    strings.TrimSpace(req.CustomerCode),
		CustomerName:    strings.TrimSpace(req.CustomerName),
		Currency:        req.Currency,
		MarginPercent:   req.MarginPercent,
		RequestedBy:     req.RequestedBy,
		SourceMessageID: req.SourceMessageID,
		SourceSubject:   req.SourceSubject,
	}
	for _, line := range req.Lines {
		quoteReq.Lines = append(quoteReq.Lines, quotedomain.QuoteLine{
			ArticleCode:  strings.TrimSpace(line.ArticleCode),
			Quantity:     line.Quantity,
			SupplierCode: strings.TrimSpace(line.SupplierCode),
		})
	}

	draft, err := s.quoteEngine.Run(c.Request.Context(), quoteReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": draft})
}

func (s *Server) GetQuote(c *gin.Context) {
	draft, err := s.quoteEngine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": draft})
}

func (s *Server) ListQuotes(c *gin.Context) {
	filter := quotedomain.ListFilter{
		ClientCode: c.Query("client_code"),
		State:      quotedomain.WorkflowState(c.Query("state")),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		filter.Limit = limit
	}

	drafts, err := s.quoteEngine.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": drafts})
}

func (s *Server) GetQuoteDocument(c *gin.Context) {
	document, err := s.quoteEngine.Document(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "quote-"+c.Param("id")+".pdf"))
	c.Data(http.StatusOK, "application/pdf", document)
}
