package pdf

import (
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/quotabl/quotabl/internal/quote/domain"
)

type renderer struct{}

func New() domain.Renderer {
	return &renderer{}
}

func (r *renderer) Render(draft *domain.QuoteDraft) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Quote "+draft.QuoteNumber, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Quote number: "+draft.QuoteNumber, props.Text{Top: 0}),
			text.New("Date: "+draft.CreatedAt.Format("2006-01-02"), props.Text{Top: 4}),
			text.New("Currency: "+draft.Currency, props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New("Customer", props.Text{Style: fontstyle.Bold}),
			text.New(draft.ClientName, props.Text{Top: 5}),
			text.New(draft.ClientCode, props.Text{Top: 9}),
		),
	)

	m.AddRow(10,
		text.NewCol(4, "Article", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(3, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(3, "Total", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, line := range draft.Lines {
		description := line.ArticleCode
		if line.ProductName != "" {
			description = fmt.Sprintf("%s — %s", line.ArticleCode, line.ProductName)
		}
		m.AddRow(8,
			text.NewCol(4, description, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%.0f", line.Quantity), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(3, fmt.Sprintf("%.2f", line.UnitPrice), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(3, fmt.Sprintf("%.2f", line.LineTotal), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(8,
		col.New(7),
		text.NewCol(2, "Subtotal", props.Text{Size: 9}),
		text.NewCol(3, fmt.Sprintf("%.2f %s", draft.Subtotal, draft.Currency), props.Text{Size: 9, Align: align.Right}),
	)
	if draft.TransportCost > 0 {
		label := "Transport"
		if draft.TransportCarrier != "" {
			label = "Transport (" + draft.TransportCarrier + ")"
		}
		m.AddRow(8,
			col.New(7),
			text.NewCol(2, label, props.Text{Size: 9}),
			text.NewCol(3, fmt.Sprintf("%.2f %s", draft.TransportCost, draft.Currency), props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(8,
		col.New(7),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, fmt.Sprintf("%.2f %s", draft.Total, draft.Currency), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	if draft.Justification != "" {
		m.AddRow(30,
			text.NewCol(12, draft.Justification, props.Text{Size: 8, Top: 4}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
