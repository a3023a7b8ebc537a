package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Theme string

const (
	ThemeFeminine  Theme = "feminine"
	ThemeMasculine Theme = "masculine"
)

func (t Theme) Valid() bool {
	return t == ThemeFeminine || t == ThemeMasculine
}

// Recipe is the structured part of a generated dessert.
type Recipe struct {
	Name        string   `json:"name"`
	Ingredients []string `json:"ingredients"`
	Steps       []string `json:"steps"`
}

// Clone returns a deep copy, so shared cache entries cannot be changed through a caller's slice.
func (r Recipe) Clone() Recipe {
	r.Ingredients = slices.Clone(r.Ingredients)
	r.Steps = slices.Clone(r.Steps)
	return r
}

// Dessert is one successful generation. Rows are immutable; only the owner may delete them.
type Dessert struct {
	ID          uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	UserID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"userId"`
	Ingredients string         `gorm:"type:text;not null" json:"ingredients"`
	Name        string         `gorm:"not null" json:"name"`
	Recipe      datatypes.JSON `gorm:"type:jsonb;not null" json:"recipe"`
	ImageURL    string         `gorm:"type:text" json:"imageUrl"`
	Theme       Theme          `gorm:"type:varchar(16);not null" json:"theme"`
	Language    string         `gorm:"type:varchar(16);not null" json:"language"`
	CacheKey    *string        `gorm:"type:varchar(32);uniqueIndex" json:"cacheKey,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"createdAt"`
}

func (d *Dessert) SetRecipe(r Recipe) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode recipe: %w", err)
	}
	d.Recipe = datatypes.JSON(raw)
	return nil
}

func (d *Dessert) DecodeRecipe() (Recipe, error) {
	var r Recipe
	if len(d.Recipe) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(d.Recipe, &r); err != nil {
		return r, fmt.Errorf("failed to decode recipe: %w", err)
	}
	return r, nil
}
