package export

import (
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/orientation"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/warp/cost-engine/budget"
)

var (
	grey     = &props.Color{Red: 100, Green: 100, Blue: 100}
	headerBg = &props.Cell{BackgroundColor: &props.Color{Red: 245, Green: 243, Blue: 239}}
	alertRed = &props.Color{Red: 176, Green: 32, Blue: 32}

	sectionStyle = props.Text{Size: 11, Style: fontstyle.Bold, Top: 2}
	headStyle    = props.Text{Size: 8, Style: fontstyle.Bold, Top: 1.5, Left: 1}
	cellStyle    = props.Text{Size: 8, Top: 1.5, Left: 1}
	numStyle     = props.Text{Size: 8, Top: 1.5, Right: 1, Align: align.Right}
	labelStyle   = props.Text{Size: 9, Style: fontstyle.Bold, Top: 1, Align: align.Right}
	valueStyle   = props.Text{Size: 9, Top: 1, Right: 1, Align: align.Right}
)

// PDF renders the report as one A4 document: budget summary, compositions,
// DRE, alerts and the ABC ranking.
func PDF(r budget.Report) ([]byte, error) {
	cfg := config.NewBuilder().
		WithOrientation(orientation.Vertical).
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).
		WithTopMargin(10).
		WithRightMargin(10).
		WithPageNumber(props.PageNumber{
			Pattern: "Pagina {current} de {total}",
			Place:   props.RightBottom,
			Size:    7,
			Color:   &props.Color{Red: 120, Green: 120, Blue: 120},
		}).
		Build()

	m := maroto.New(cfg)

	addPDFHeader(m, r)
	addPDFCompositions(m, r)
	addPDFTotals(m, r.Valuation)
	addPDFDRE(m, r.DRE)
	addPDFAlerts(m, r.Alerts)
	addPDFABC(m, r.ABC)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate budget PDF: %w", err)
	}
	return doc.GetBytes(), nil
}

func addPDFHeader(m core.Maroto, r budget.Report) {
	m.AddRows(
		row.New(10).Add(
			col.New(8).Add(text.New(r.Budget.Name, props.Text{Size: 14, Style: fontstyle.Bold})),
			col.New(4).Add(text.New("ORCAMENTO", props.Text{Size: 14, Style: fontstyle.Bold, Align: align.Right})),
		),
		row.New(6).Add(
			col.New(12).Add(text.New(clientLine(r), props.Text{Size: 8, Color: grey})),
		),
		row.New(3),
	)
}

func section(m core.Maroto, title string) {
	m.AddRows(row.New(9).Add(col.New(12).Add(text.New(title, sectionStyle))))
}

type cell struct {
	size  int
	value string
	style props.Text
}

// tableRow builds one row; header rows get the shaded background.
func tableRow(height float64, header bool, cells ...cell) core.Row {
	cols := make([]core.Col, 0, len(cells))
	for _, c := range cells {
		column := col.New(c.size).Add(text.New(c.value, c.style))
		if header {
			column = column.WithStyle(headerBg)
		}
		cols = append(cols, column)
	}
	return row.New(height).Add(cols...)
}

func addPDFCompositions(m core.Maroto, r budget.Report) {
	section(m, "Composicoes")
	m.AddRows(tableRow(6, true,
		cell{4, "Composicao", headStyle},
		cell{2, "Custo direto", headStyle},
		cell{1, "BDI", headStyle},
		cell{2, "Valor BDI", headStyle},
		cell{2, "Total", headStyle},
		cell{1, "%", headStyle},
	))
	for _, c := range r.Valuation.Compositions {
		m.AddRows(tableRow(6, false,
			cell{4, c.Name, cellStyle},
			cell{2, FormatBRL(c.DirectCost), numStyle},
			cell{1, FormatRate(c.OverheadRate), numStyle},
			cell{2, FormatBRL(c.OverheadAmount), numStyle},
			cell{2, FormatBRL(c.TotalWithOverhead), numStyle},
			cell{1, FormatPercent(c.ShareOfBudgetDirectCost), numStyle},
		))
	}
}

func summaryLine(m core.Maroto, label, value string) {
	m.AddRows(row.New(6).Add(
		col.New(8).Add(text.New(label, labelStyle)),
		col.New(4).Add(text.New(value, valueStyle)),
	))
}

func addPDFTotals(m core.Maroto, v budget.Valuation) {
	m.AddRows(row.New(3))
	summaryLine(m, "Custo direto", FormatBRL(v.TotalDirectCost))
	summaryLine(m, "BDI ("+FormatPercent(v.AverageOverheadRate)+" medio)", FormatBRL(v.TotalOverhead))
	summaryLine(m, "Subtotal", FormatBRL(v.Subtotal))
	summaryLine(m, "Impostos ("+FormatRate(v.CombinedTaxRate)+")", FormatBRL(v.TotalTaxAmount))
	summaryLine(m, "Preco final", FormatBRL(v.FinalSalePrice))
	if v.PricePerArea != nil {
		summaryLine(m, "Preco por m2", FormatBRL(*v.PricePerArea))
	}
	bracket := fmt.Sprintf("Faixa %d (%s)", v.TaxBracket.Tier, FormatRate(v.TaxBracket.Rate))
	if v.NextBracket != nil {
		bracket += fmt.Sprintf(", proxima faixa acima de %s", FormatBRL(v.TaxBracket.RevenueCeiling))
	}
	m.AddRows(row.New(6).Add(col.New(12).Add(text.New(bracket, props.Text{Size: 8, Color: grey, Align: align.Right, Top: 1}))))
}

func addPDFDRE(m core.Maroto, d budget.DRE) {
	section(m, "Demonstrativo de resultado")
	lines := [][2]string{
		{"Receita bruta", FormatBRL(d.GrossRevenue)},
		{"(-) Impostos", FormatBRL(d.Taxes)},
		{"Receita liquida", FormatBRL(d.NetRevenue)},
		{"(-) Custos diretos", FormatBRL(d.DirectCosts)},
		{"Lucro bruto (" + FormatPercent(d.GrossMarginPercent) + ")", FormatBRL(d.GrossProfit)},
		{"(-) BDI", FormatBRL(d.Overhead)},
		{"Lucro liquido (" + FormatPercent(d.NetMarginPercent) + ")", FormatBRL(d.NetProfit)},
	}
	for _, l := range lines {
		m.AddRows(tableRow(6, false, cell{8, l[0], cellStyle}, cell{4, l[1], numStyle}))
	}
}

func addPDFAlerts(m core.Maroto, alerts []budget.Alert) {
	if len(alerts) == 0 {
		return
	}
	section(m, "Alertas")
	for _, a := range alerts {
		style := props.Text{Size: 8, Top: 1, Left: 1, Color: grey}
		if a.Severity == budget.SeverityError {
			style.Color = alertRed
			style.Style = fontstyle.Bold
		}
		m.AddRows(row.New(6).Add(col.New(12).Add(text.New(a.Message, style))))
	}
}

func addPDFABC(m core.Maroto, abc budget.ABCResult) {
	section(m, "Curva ABC")
	m.AddRows(tableRow(6, true,
		cell{1, "#", headStyle},
		cell{1, "Classe", headStyle},
		cell{4, "Item", headStyle},
		cell{2, "Composicao", headStyle},
		cell{2, "Subtotal", headStyle},
		cell{2, "% acum.", headStyle},
	))
	for _, it := range abc.Items {
		m.AddRows(tableRow(6, false,
			cell{1, fmt.Sprintf("%d", it.Rank), cellStyle},
			cell{1, string(it.Class), cellStyle},
			cell{4, it.Description, cellStyle},
			cell{2, it.Source, cellStyle},
			cell{2, FormatBRL(it.Subtotal), numStyle},
			cell{2, FormatPercent(it.CumulativePercent), numStyle},
		))
	}
	m.AddRows(row.New(3))
	for _, c := range []budget.ABCClass{budget.ClassA, budget.ClassB, budget.ClassC} {
		t := abc.Class(c)
		summaryLine(m, fmt.Sprintf("Classe %s (%d itens, %s)", c, t.Count, FormatPercent(t.Percent)), FormatBRL(t.Total))
	}
}
