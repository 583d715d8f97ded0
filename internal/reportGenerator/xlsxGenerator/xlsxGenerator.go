package xlsxGenerator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/avdeyev/papertrader/internal/model"
	"github.com/avdeyev/papertrader/utils"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Transactions"

type XLSXGenerator struct{}

func New() *XLSXGenerator {
	return &XLSXGenerator{}
}

func (g *XLSXGenerator) Generate(ctx context.Context, transactions []model.Transaction) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XLSXGenerator.Generate"

	if len(transactions) == 0 {
		return nil, "", errors.New("empty transactions")
	}

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	if err := g.fillSheet(f, transactions); err != nil {
		slog.Error("got error while filling sheet", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), ".xlsx", nil
}

func (g *XLSXGenerator) fillSheet(f *excelize.File, transactions []model.Transaction) error {
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Font: &excelize.Font{
			Bold: true,
			Size: 11,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{"#cfe2f3"},
		},
	})
	if err != nil {
		return err
	}

	headers := []string{"executed at", "symbol", "side", "quantity", "price per share", "total"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		_ = f.SetCellStr(sheetName, cell, header)
	}

	lastHeaderCell, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", lastHeaderCell, headerStyle); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	for i, trn := range transactions {
		row := i + 2
		_ = f.SetCellStr(sheetName, fmt.Sprintf("A%d", row), trn.ExecutedAt.Format("2006-01-02 15:04:05"))
		_ = f.SetCellStr(sheetName, fmt.Sprintf("B%d", row), trn.Symbol)
		_ = f.SetCellStr(sheetName, fmt.Sprintf("C%d", row), string(trn.Side))
		_ = f.SetCellStr(sheetName, fmt.Sprintf("D%d", row), trn.Quantity.String())
		_ = f.SetCellStr(sheetName, fmt.Sprintf("E%d", row), trn.PricePerShare.String())
		_ = f.SetCellStr(sheetName, fmt.Sprintf("F%d", row), trn.Quantity.Mul(trn.PricePerShare).String())
	}

	return nil
}
