package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Pairing algorithms accepted in settings.
const (
	AlgorithmBayesian = "bayesian"
	AlgorithmElo      = "elo"
)

// Settings tune the pairing scorer for one tournament.
type Settings struct {
	Algorithm           string  `json:"algorithm" validate:"oneof=bayesian elo"`
	SkillVariance       float64 `json:"skill_variance" validate:"gte=0.1,lte=1"`
	DeckDiversityWeight float64 `json:"deck_diversity_weight" validate:"gte=0.1,lte=1"`
	MinSkillDifference  float64 `json:"min_skill_difference" validate:"gte=50,lte=300"`
	MaxSkillDifference  float64 `json:"max_skill_difference" validate:"gte=300,lte=1000"`
}

// SettingsPatch is a partial update; nil fields keep their current value.
type SettingsPatch struct {
	Algorithm           *string  `json:"algorithm,omitempty"`
	SkillVariance       *float64 `json:"skill_variance,omitempty"`
	DeckDiversityWeight *float64 `json:"deck_diversity_weight,omitempty"`
	MinSkillDifference  *float64 `json:"min_skill_difference,omitempty"`
	MaxSkillDifference  *float64 `json:"max_skill_difference,omitempty"`
}

// DefaultSettings returns the settings of a new tournament.
func DefaultSettings() Settings {
	return Settings{
		Algorithm:           AlgorithmBayesian,
		SkillVariance:       0.3,
		DeckDiversityWeight: 0.4,
		MinSkillDifference:  100,
		MaxSkillDifference:  500,
	}
}

// Merge applies p on top of s.
func (s Settings) Merge(p SettingsPatch) Settings {
	if p.Algorithm != nil {
		s.Algorithm = *p.Algorithm
	}
	if p.SkillVariance != nil {
		s.SkillVariance = *p.SkillVariance
	}
	if p.DeckDiversityWeight != nil {
		s.DeckDiversityWeight = *p.DeckDiversityWeight
	}
	if p.MinSkillDifference != nil {
		s.MinSkillDifference = *p.MinSkillDifference
	}
	if p.MaxSkillDifference != nil {
		s.MaxSkillDifference = *p.MaxSkillDifference
	}
	return s
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its allowed range.
func (s Settings) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(msgs, "; "))
}
