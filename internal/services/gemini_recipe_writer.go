package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"dessert_generator_go_backend/internal/models"

	"github.com/google/generative-ai-go/genai"
)

const recipeSystemInstruction = `You are a pastry chef who invents desserts from the ingredients a home cook has.
Answer with a single JSON object: {"name": string, "ingredients": [string], "steps": [string]}.
Use every provided ingredient, add only pantry staples, and keep steps short and ordered.`

// ContentGenerator is the part of *genai.GenerativeModel the writer uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiRecipeWriter asks a Gemini model for a JSON recipe.
type GeminiRecipeWriter struct {
	model ContentGenerator
}

func NewGeminiRecipeWriter(client *genai.Client, modelName string, temperature float32) *GeminiRecipeWriter {
	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(recipeSystemInstruction)}}
	return &GeminiRecipeWriter{model: model}
}

func NewGeminiRecipeWriterWithModel(model ContentGenerator) *GeminiRecipeWriter {
	return &GeminiRecipeWriter{model: model}
}

func (w *GeminiRecipeWriter) WriteRecipe(ctx context.Context, ingredients string, theme models.Theme, language string) (*models.Recipe, error) {
	resp, err := w.model.GenerateContent(ctx, genai.Text(recipePrompt(ingredients, theme, language)))
	if err != nil {
		return nil, err
	}
	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}
	return parseRecipe(text)
}

func recipePrompt(ingredients string, theme models.Theme, language string) string {
	tone := "romantic and delicate"
	if theme == models.ThemeMasculine {
		tone = "bold and hearty"
	}
	return fmt.Sprintf("Ingredients: %s\nGive the dessert a %s name.\nWrite the whole answer in the language with code %q.",
		strings.Join(NormalizeIngredients(ingredients), ", "), tone, language)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("empty response from model")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("model response has no text")
	}
	return sb.String(), nil
}

// parseRecipe accepts the bare JSON object, optionally wrapped in a markdown code fence.
func parseRecipe(text string) (*models.Recipe, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var recipe models.Recipe
	if err := json.Unmarshal([]byte(text), &recipe); err != nil {
		return nil, fmt.Errorf("failed to parse recipe JSON: %w", err)
	}
	recipe.Name = strings.TrimSpace(recipe.Name)
	if recipe.Name == "" || len(recipe.Ingredients) == 0 || len(recipe.Steps) == 0 {
		return nil, errors.New("recipe is missing name, ingredients or steps")
	}
	return &recipe, nil
}
