package services

import (
	"bytes"
	"fmt"

	"dessert_generator_go_backend/internal/models"

	"github.com/jung-kurt/gofpdf"
)

// RenderRecipePDF lays out a dessert as a printable one-page recipe card.
func RenderRecipePDF(dessert *models.Dessert) ([]byte, error) {
	recipe, err := dessert.DecodeRecipe()
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	// Core fonts are cp1252; translate so Portuguese accents survive.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(recipe.Name), false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 20)
	pdf.MultiCell(0, 10, tr(recipe.Name), "", "L", false)
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 8, tr("Ingredients"))
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 12)
	for _, ing := range recipe.Ingredients {
		pdf.MultiCell(0, 6, tr("- "+ing), "", "L", false)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 8, tr("Steps"))
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 12)
	for i, step := range recipe.Steps {
		pdf.MultiCell(0, 6, tr(fmt.Sprintf("%d. %s", i+1, step)), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render recipe pdf: %w", err)
	}
	return buf.Bytes(), nil
}
