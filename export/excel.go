package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/warp/cost-engine/budget"
)

// Sheet names.
const (
	SheetBudget = "Orcamento"
	SheetABC    = "ABC"
	SheetDRE    = "DRE"
)

type excelStyles struct {
	title, header, cell, label, value int
}

// Excel renders the report as a workbook with three sheets: the budget
// (compositions and totals), the ABC ranking and the DRE.
func Excel(r budget.Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetBudget); err != nil {
		return nil, fmt.Errorf("set sheet name: %w", err)
	}
	for _, name := range []string{SheetABC, SheetDRE} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	styles, err := newExcelStyles(f)
	if err != nil {
		return nil, err
	}

	if err := writeBudgetSheet(f, styles, r); err != nil {
		return nil, err
	}
	if err := writeABCSheet(f, styles, r); err != nil {
		return nil, err
	}
	if err := writeDRESheet(f, styles, r); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

func newExcelStyles(f *excelize.File) (excelStyles, error) {
	var s excelStyles
	var err error

	if s.title, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 16},
	}); err != nil {
		return s, fmt.Errorf("create title style: %w", err)
	}
	if s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF", Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#333333"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorders(),
	}); err != nil {
		return s, fmt.Errorf("create header style: %w", err)
	}
	if s.cell, err = f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Size: 10},
		Border: thinBorders(),
	}); err != nil {
		return s, fmt.Errorf("create cell style: %w", err)
	}
	if s.label, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Alignment: &excelize.Alignment{Horizontal: "right"},
	}); err != nil {
		return s, fmt.Errorf("create label style: %w", err)
	}
	if s.value, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
	}); err != nil {
		return s, fmt.Errorf("create value style: %w", err)
	}
	return s, nil
}

// writeTable writes headers at headerRow and rows below it, returning the
// next free row. User text must already be sanitized.
func writeTable(f *excelize.File, sheet string, st excelStyles, headerRow int, headers []string, widths []float64, rows [][]any) (int, error) {
	for i, h := range headers {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return 0, err
		}
		if err := f.SetColWidth(sheet, col, col, widths[i]); err != nil {
			return 0, fmt.Errorf("set col width %s: %w", col, err)
		}
		f.SetCellValue(sheet, fmt.Sprintf("%s%d", col, headerRow), h)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", headerRow), fmt.Sprintf("%s%d", lastCol, headerRow), st.header)

	row := headerRow + 1
	for _, values := range rows {
		for i, v := range values {
			col, _ := excelize.ColumnNumberToName(i + 1)
			f.SetCellValue(sheet, fmt.Sprintf("%s%d", col, row), v)
		}
		f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("%s%d", lastCol, row), st.cell)
		row++
	}
	return row, nil
}

func writeSummary(f *excelize.File, sheet string, st excelStyles, row int, labelCol, valueCol string, lines [][2]string) int {
	for _, l := range lines {
		f.SetCellValue(sheet, fmt.Sprintf("%s%d", labelCol, row), l[0])
		f.SetCellStyle(sheet, fmt.Sprintf("%s%d", labelCol, row), fmt.Sprintf("%s%d", labelCol, row), st.label)
		f.SetCellValue(sheet, fmt.Sprintf("%s%d", valueCol, row), l[1])
		f.SetCellStyle(sheet, fmt.Sprintf("%s%d", valueCol, row), fmt.Sprintf("%s%d", valueCol, row), st.value)
		row++
	}
	return row
}

func writeTitle(f *excelize.File, sheet string, st excelStyles, title, subtitle string) {
	f.SetCellValue(sheet, "A1", sanitizeExcelCell(title))
	f.SetCellStyle(sheet, "A1", "A1", st.title)
	if subtitle != "" {
		f.SetCellValue(sheet, "A2", sanitizeExcelCell(subtitle))
	}
}

func writeBudgetSheet(f *excelize.File, st excelStyles, r budget.Report) error {
	v := r.Valuation
	writeTitle(f, SheetBudget, st, r.Budget.Name, clientLine(r))

	rows := make([][]any, 0, len(v.Compositions))
	for i, c := range v.Compositions {
		rows = append(rows, []any{
			i + 1,
			sanitizeExcelCell(c.Name),
			string(c.Category),
			FormatBRL(c.DirectCost),
			FormatRate(c.OverheadRate),
			FormatBRL(c.OverheadAmount),
			FormatBRL(c.TotalWithOverhead),
			FormatPercent(c.ShareOfBudgetDirectCost),
		})
	}
	next, err := writeTable(f, SheetBudget, st, 4,
		[]string{"#", "Composicao", "Categoria", "Custo direto", "BDI", "Valor BDI", "Total", "% do custo"},
		[]float64{6, 36, 14, 18, 10, 18, 18, 12},
		rows)
	if err != nil {
		return err
	}

	lines := [][2]string{
		{"Custo direto:", FormatBRL(v.TotalDirectCost)},
		{"BDI:", FormatBRL(v.TotalOverhead)},
		{"Subtotal:", FormatBRL(v.Subtotal)},
		{"Impostos (" + FormatRate(v.CombinedTaxRate) + "):", FormatBRL(v.TotalTaxAmount)},
		{"Preco final:", FormatBRL(v.FinalSalePrice)},
		{"BDI medio:", FormatPercent(v.AverageOverheadRate)},
		{"Faixa:", fmt.Sprintf("%d (%s)", v.TaxBracket.Tier, FormatRate(v.TaxBracket.Rate))},
	}
	if v.PricePerArea != nil {
		lines = append(lines, [2]string{"Preco por m2:", FormatBRL(*v.PricePerArea)})
	}
	writeSummary(f, SheetBudget, st, next+1, "F", "G", lines)
	return nil
}

func writeABCSheet(f *excelize.File, st excelStyles, r budget.Report) error {
	writeTitle(f, SheetABC, st, "Curva ABC", r.Budget.Name)

	rows := make([][]any, 0, len(r.ABC.Items))
	for _, it := range r.ABC.Items {
		rows = append(rows, []any{
			it.Rank,
			string(it.Class),
			sanitizeExcelCell(it.Description),
			sanitizeExcelCell(it.Source),
			FormatQuantity(it.Quantity),
			FormatBRL(it.UnitValue),
			FormatBRL(it.Subtotal),
			FormatPercent(it.SharePercent),
			FormatPercent(it.CumulativePercent),
		})
	}
	next, err := writeTable(f, SheetABC, st, 4,
		[]string{"#", "Classe", "Item", "Composicao", "Qtd", "Valor unit.", "Subtotal", "%", "% acumulado"},
		[]float64{6, 8, 36, 24, 10, 16, 16, 10, 12},
		rows)
	if err != nil {
		return err
	}

	var lines [][2]string
	for _, c := range []budget.ABCClass{budget.ClassA, budget.ClassB, budget.ClassC} {
		t := r.ABC.Class(c)
		lines = append(lines, [2]string{
			"Classe " + string(c) + ":",
			fmt.Sprintf("%d itens, %s (%s)", t.Count, FormatBRL(t.Total), FormatPercent(t.Percent)),
		})
	}
	writeSummary(f, SheetABC, st, next+1, "C", "D", lines)
	return nil
}

func writeDRESheet(f *excelize.File, st excelStyles, r budget.Report) error {
	d := r.DRE
	writeTitle(f, SheetDRE, st, "Demonstrativo de resultado", r.Budget.Name)

	rows := [][]any{
		{"Receita bruta", FormatBRL(d.GrossRevenue)},
		{"(-) Impostos", FormatBRL(d.Taxes)},
		{"Receita liquida", FormatBRL(d.NetRevenue)},
		{"(-) Custos diretos", FormatBRL(d.DirectCosts)},
		{"Lucro bruto", FormatBRL(d.GrossProfit)},
		{"Margem bruta", FormatPercent(d.GrossMarginPercent)},
		{"(-) BDI", FormatBRL(d.Overhead)},
		{"Lucro liquido", FormatBRL(d.NetProfit)},
		{"Margem liquida", FormatPercent(d.NetMarginPercent)},
	}
	next, err := writeTable(f, SheetDRE, st, 4, []string{"Conta", "Valor"}, []float64{28, 20}, rows)
	if err != nil {
		return err
	}

	if len(r.Alerts) > 0 {
		alertRows := make([][]any, 0, len(r.Alerts))
		for _, a := range r.Alerts {
			alertRows = append(alertRows, []any{string(a.Severity), a.Message})
		}
		if _, err := writeTable(f, SheetDRE, st, next+1, []string{"Alerta", "Mensagem"}, []float64{28, 80}, alertRows); err != nil {
			return err
		}
	}
	return nil
}

func clientLine(r budget.Report) string {
	line := "Gerado em " + r.GeneratedAt.Format("02/01/2006 15:04")
	if r.Budget.Client != "" {
		line = "Cliente: " + r.Budget.Client + " | " + line
	}
	return line
}

// thinBorders returns thin borders on all four sides.
func thinBorders() []excelize.Border {
	sides := []string{"left", "top", "bottom", "right"}
	borders := make([]excelize.Border, len(sides))
	for i, side := range sides {
		borders[i] = excelize.Border{Type: side, Color: "#000000", Style: 1}
	}
	return borders
}
