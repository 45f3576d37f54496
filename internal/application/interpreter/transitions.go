package interpreter

import (
	"fmt"

	"github.com/aegis-run/orchestrator/internal/application/expreval"
	"github.com/aegis-run/orchestrator/internal/domain"
)

// evaluateTransitions walks a state's ordered transition list and returns
// the target of the first rule whose condition matches.
func evaluateTransitions(eval *expreval.Evaluator, rules []domain.TransitionRule, result stepResult, bb *domain.Blackboard) (string, error) {
	for _, rule := range rules {
		ok, err := matchCondition(eval, rule.Condition, result, bb)
		if err != nil {
			return "", err
		}
		if ok {
			return rule.Target, nil
		}
	}
	return "", domain.NewDomainError(domain.ErrNoTransition, "no transition rule matched", nil)
}

func matchCondition(eval *expreval.Evaluator, cond domain.Condition, result stepResult, bb *domain.Blackboard) (bool, error) {
	switch cond.Kind {
	case domain.ConditionAlways:
		return true, nil
	case domain.ConditionOnSuccess:
		return result.Success, nil
	case domain.ConditionOnFailure:
		return !result.Success, nil
	case domain.ConditionExitCodeEquals:
		return result.ExitCode == cond.ExitCode, nil
	case domain.ConditionScoreAbove:
		return result.Score > cond.Threshold, nil
	case domain.ConditionScoreBelow:
		return result.Score < cond.Threshold, nil
	case domain.ConditionScoreBetween:
		return result.Score >= cond.Low && result.Score <= cond.High, nil
	case domain.ConditionConfidenceAbove:
		return result.Confidence > cond.Threshold, nil
	case domain.ConditionInputEquals:
		return fmt.Sprintf("%v", result.Output) == fmt.Sprintf("%v", cond.Value), nil
	case domain.ConditionAllApproved:
		return allTrue(result.Approved), nil
	case domain.ConditionAnyRejected:
		return anyFalse(result.Approved), nil
	case domain.ConditionCustom:
		vars := bb.All()
		vars["output"] = result.Output
		vars["success"] = result.Success
		vars["exit_code"] = result.ExitCode
		vars["score"] = result.Score
		vars["confidence"] = result.Confidence
		return eval.EvalBool(cond.Expression, vars)
	default:
		return false, domain.NewDomainError(domain.ErrCodeInvalidInput, fmt.Sprintf("unknown condition kind %q", cond.Kind), nil)
	}
}

func allTrue(vals []bool) bool {
	if len(vals) == 0 {
		return false
	}
	for _, v := range vals {
		if !v {
			return false
		}
	}
	return true
}

func anyFalse(vals []bool) bool {
	for _, v := range vals {
		if !v {
			return true
		}
	}
	return false
}

// aggregateConsensus folds branch outcomes into a single score + pass/fail
// per the configured ConsensusStrategy. weighted_average takes the true
// weighted mean of each branch's graded Score, so a single branch degrades
// to plain single-agent semantics (its consensus score equals its own
// score). majority_pass instead reduces every branch to a binary pass/fail
// and reports the passing-weight fraction, ignoring graded scores
// entirely. unanimous_pass requires every branch to have succeeded
// outright, reporting a score of 1.0 only on unanimous success.
func aggregateConsensus(outcomes []branchOutcome, cfg domain.ConsensusConfig) (score float64, success bool, approved []bool) {
	approved = make([]bool, len(outcomes))
	if len(outcomes) == 0 {
		return 0, false, approved
	}

	var totalWeight, passWeight, scoreSum float64
	for i, oc := range outcomes {
		totalWeight += oc.Weight
		scoreSum += oc.Weight * oc.Score
		if oc.Success {
			passWeight += oc.Weight
		}
		approved[i] = oc.Success
	}

	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 0.5
	}

	switch cfg.Strategy {
	case domain.ConsensusUnanimousPass:
		success = allTrue(approved)
		if success {
			score = 1.0
		} else if totalWeight > 0 {
			score = scoreSum / totalWeight
		}
	case domain.ConsensusMajorityPass:
		if totalWeight > 0 {
			score = passWeight / totalWeight
		}
		success = score >= threshold
	case domain.ConsensusWeightedAverage:
		fallthrough
	default:
		if totalWeight > 0 {
			score = scoreSum / totalWeight
		}
		success = score >= threshold
	}
	return score, success, approved
}
