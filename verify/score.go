package verify

import "math"

// Factors are the independent boolean integrity signals feeding the trust
// score. Each factor has a fixed weight; the score is their sum normalized
// to 0-100. The function is pure and documented to callers as advisory, not
// a security guarantee.
type Factors struct {
	ContentIntegrity  bool // report approved and snapshot fingerprint on record
	OnChainVerified   bool // ledger commitment present and matching
	SectionsComplete  bool // all three report sections present
	HasTestResults    bool // structured test results present
	HasCertifications bool
}

const (
	weightContentIntegrity = 30
	weightOnChainVerified  = 25
	weightSectionsComplete = 20
	weightTestResults      = 15
	weightCertifications   = 10
)

// Score computes the trust score for the given factors.
func Score(f Factors) int {
	score := 0
	maxScore := 0

	maxScore += weightContentIntegrity
	if f.ContentIntegrity {
		score += weightContentIntegrity
	}

	maxScore += weightOnChainVerified
	if f.OnChainVerified {
		score += weightOnChainVerified
	}

	maxScore += weightSectionsComplete
	if f.SectionsComplete {
		score += weightSectionsComplete
	}

	maxScore += weightTestResults
	if f.HasTestResults {
		score += weightTestResults
	}

	maxScore += weightCertifications
	if f.HasCertifications {
		score += weightCertifications
	}

	return int(math.Round(float64(score) / float64(maxScore) * 100))
}
