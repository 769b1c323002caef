package regime

import (
	"github.com/marrow-labs/truthspine/pkg/fixedpoint"
)

// Label is a discrete risk regime, most severe first.
type Label string

const (
	Crash    Label = "CRASH"
	Stress   Label = "STRESS"
	HighRisk Label = "HIGH_RISK"
	Normal   Label = "NORMAL"
)

// Severity ranks a label; higher is more severe.
func (l Label) Severity() int {
	switch l {
	case Crash:
		return 3
	case Stress:
		return 2
	case HighRisk:
		return 1
	default:
		return 0
	}
}

// Multiplier is the sizing multiplier carried by each regime, as a fixed
// decimal string. The most severe tier clamps; it is never extrapolated.
func (l Label) Multiplier() string {
	switch l {
	case Crash:
		return "0.25"
	case Stress:
		return "0.50"
	case HighRisk:
		return "0.75"
	default:
		return "1.00"
	}
}

// Blocking reports whether the regime blocks new submissions.
func (l Label) Blocking() bool {
	return l == Crash || l == Stress
}

// Thresholds are the drawdown cut lines, most severe last. Comparisons are
// exact fixed-point; a drawdown at or below a line triggers its tier.
type Thresholds struct {
	HighRisk fixedpoint.Decimal
	Stress   fixedpoint.Decimal
	Crash    fixedpoint.Decimal
}

// DefaultThresholds returns the governed production cut lines.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighRisk: fixedpoint.MustParse("-0.050000"),
		Stress:   fixedpoint.MustParse("-0.100000"),
		Crash:    fixedpoint.MustParse("-0.150000"),
	}
}

// Signals are the day's risk inputs. Statuses are the raw status-field
// values of their source artifacts, uppercased by the caller or left empty
// when the source is absent.
type Signals struct {
	DrawdownPct string // fixed decimal string, required

	RiskLedgerStatus      string
	CapitalEnvelopeStatus string
	CapitalEnvelopeSevere bool

	SubmissionsPresent    bool
	BrokerManifestPresent bool
	BrokerManifestStatus  string
}

// Classification is the deterministic regime outcome.
type Classification struct {
	Label       Label
	Multiplier  string
	Blocking    bool
	ReasonCodes []string
}

// Classify maps the day's signals to a regime. Tiers are evaluated most
// severe first and the first match wins; a missing or unparsable required
// input classifies as CRASH, never as NORMAL. An engine risk ledger that
// is not OK forces CRASH regardless of every other signal.
func Classify(sig Signals, th Thresholds) Classification {
	var codes []string

	ddMicro, ddErr := fixedpoint.Parse(sig.DrawdownPct)
	if sig.DrawdownPct == "" {
		codes = append(codes, "MISSING_REQUIRED_DRAWDOWN_PCT")
		return finish(Crash, append(codes, "REGIME_CRASH_REQUIRED_INPUT_MISSING"))
	}
	if ddErr != nil {
		codes = append(codes, "UNPARSABLE_DRAWDOWN_PCT")
		return finish(Crash, append(codes, "REGIME_CRASH_REQUIRED_INPUT_MISSING"))
	}

	brokerTruthMissing := sig.SubmissionsPresent &&
		(!sig.BrokerManifestPresent || sig.BrokerManifestStatus != "OK")

	crash := false
	if ddMicro.LessOrEqual(th.Crash) {
		crash = true
		codes = append(codes, "REGIME_CRASH_DRAWDOWN_LEQ_"+reasonSuffix(th.Crash))
	}
	if sig.CapitalEnvelopeSevere {
		crash = true
		codes = append(codes, "REGIME_CRASH_SEVERE_ENVELOPE_FAILURE_V2")
	}
	if brokerTruthMissing {
		crash = true
		codes = append(codes, "REGIME_CRASH_BROKER_TRUTH_MISSING_DURING_SUBMISSIONS")
	}

	stress := false
	if !crash {
		if ddMicro.LessOrEqual(th.Stress) {
			stress = true
			codes = append(codes, "REGIME_STRESS_DRAWDOWN_LEQ_"+reasonSuffix(th.Stress))
		}
		if sig.CapitalEnvelopeStatus != "PASS" {
			stress = true
			codes = append(codes, "REGIME_STRESS_CAPITAL_ENVELOPE_V2_NOT_PASS")
		}
	}

	highRisk := false
	if !crash && !stress {
		if ddMicro.LessOrEqual(th.HighRisk) {
			highRisk = true
			codes = append(codes, "REGIME_HIGH_RISK_DRAWDOWN_LEQ_"+reasonSuffix(th.HighRisk))
		}
		if sig.SubmissionsPresent && sig.BrokerManifestPresent &&
			(sig.BrokerManifestStatus == "DEGRADED" || sig.BrokerManifestStatus == "FAIL") {
			highRisk = true
			codes = append(codes, "REGIME_HIGH_RISK_BROKER_MANIFEST_NOT_OK")
		}
	}

	label := Normal
	switch {
	case crash:
		label = Crash
	case stress:
		label = Stress
	case highRisk:
		label = HighRisk
	default:
		if len(codes) == 0 {
			codes = append(codes, "REGIME_NORMAL_NO_TRIGGERS")
		}
	}

	// The engine risk ledger is never ignorable.
	if sig.RiskLedgerStatus != "OK" {
		label = Crash
		codes = append(codes, "REGIME_CRASH_ENGINE_RISK_BUDGET_LEDGER_NOT_OK")
	}

	return finish(label, codes)
}

func finish(label Label, codes []string) Classification {
	return Classification{
		Label:       label,
		Multiplier:  label.Multiplier(),
		Blocking:    label.Blocking(),
		ReasonCodes: codes,
	}
}

// reasonSuffix renders a threshold for embedding in a reason code,
// replacing the decimal point so codes stay single-token.
func reasonSuffix(d fixedpoint.Decimal) string {
	s := d.String()
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, '_')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}
