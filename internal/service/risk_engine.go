package service

import (
	"context"

	"booking-service/internal/models"
)

// RiskAssessment is the decision contract returned by the risk engine.
type RiskAssessment struct {
	Score        float64  `json:"score"`
	Decision     string   `json:"decision"`
	Reasons      []string `json:"reasons"`
	ModelVersion string   `json:"model_version"`
}

// Snapshot converts the assessment into the persisted form.
func (a *RiskAssessment) Snapshot() models.RiskSnapshot {
	return models.RiskSnapshot{
		Score:        a.Score,
		Decision:     a.Decision,
		Reasons:      a.Reasons,
		ModelVersion: a.ModelVersion,
	}
}

// RiskEngine scores a booking. The scorer itself is a black box; only the
// decision contract matters to the orchestrator.
type RiskEngine interface {
	Evaluate(ctx context.Context, organizationID string, booking *models.Booking) (*RiskAssessment, error)
}

// ThresholdRiskEngine is the built-in rule scorer: the score grows with the
// booking amount and crosses into REVIEW and BLOCK at configured thresholds.
// Production deployments swap in a remote scorer behind the same interface.
type ThresholdRiskEngine struct {
	ReviewThreshold float64
	BlockThreshold  float64
	// AmountScale is the amount at which the score reaches 1.0.
	AmountScale int64
}

// NewThresholdRiskEngine creates the rule scorer with the given thresholds.
func NewThresholdRiskEngine(reviewThreshold, blockThreshold float64, amountScale int64) *ThresholdRiskEngine {
	if amountScale <= 0 {
		amountScale = 10_000_000
	}
	return &ThresholdRiskEngine{
		ReviewThreshold: reviewThreshold,
		BlockThreshold:  blockThreshold,
		AmountScale:     amountScale,
	}
}

func (e *ThresholdRiskEngine) Evaluate(ctx context.Context, organizationID string, booking *models.Booking) (*RiskAssessment, error) {
	score := float64(booking.Amount) / float64(e.AmountScale)
	if score > 1.0 {
		score = 1.0
	}

	assessment := &RiskAssessment{
		Score:        score,
		Decision:     models.RiskDecisionAllow,
		Reasons:      []string{},
		ModelVersion: "rules-v1",
	}

	switch {
	case score >= e.BlockThreshold:
		assessment.Decision = models.RiskDecisionBlock
		assessment.Reasons = append(assessment.Reasons, "amount_above_block_threshold")
	case score >= e.ReviewThreshold:
		assessment.Decision = models.RiskDecisionReview
		assessment.Reasons = append(assessment.Reasons, "amount_above_review_threshold")
	}

	return assessment, nil
}
