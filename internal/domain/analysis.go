package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Analysis is the structured result of interpreting a free-text aesthetic
// request ("cottagecore vibes", "dark academia outfit").
type Analysis struct {
	Style      string   `json:"style"      validate:"required"`
	Colors     []string `json:"colors"     validate:"dive,required"`
	Keywords   []string `json:"keywords"   validate:"min=1,dive,required"`
	Categories []string `json:"categories" validate:"min=1,dive,required"`
	Mood       string   `json:"mood"`
	Confidence float64  `json:"confidence" validate:"gte=0,lte=1"`
}

// Validate checks that the analysis carries enough information to drive a
// product search.
func (a *Analysis) Validate() error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("%w: analysis: %v", ErrValidation, err)
	}
	return nil
}

// Product is a single search result.
type Product struct {
	ID             string  `json:"id"              validate:"required"`
	Title          string  `json:"title"           validate:"required"`
	Price          string  `json:"price"`
	Image          string  `json:"image"`
	Rating         float64 `json:"rating"          validate:"gte=0,lte=5"`
	URL            string  `json:"url"`
	Description    string  `json:"description,omitempty"`
	Category       string  `json:"category,omitempty"`
	AestheticMatch float64 `json:"aesthetic_match,omitempty"`
}

// Validate checks the fields required to display a product.
func (p *Product) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: product: %v", ErrValidation, err)
	}
	return nil
}
