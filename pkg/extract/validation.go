package extract

// Severity ranks how much an issue undermines trust in the record.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeveritySevere  Severity = "severe"
)

// Issue is one recorded validation problem. Issues are appended in the
// order stages discover them.
type Issue struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Status is the validation rollup outcome.
type Status string

const (
	StatusValidated   Status = "validated"
	StatusNeedsReview Status = "needs_review"
)

// Validation always accompanies a Record: a 0-100 confidence score, the
// rollup status, and the ordered issue list that produced them.
type Validation struct {
	Confidence int     `json:"confidence"`
	Status     Status  `json:"status"`
	Issues     []Issue `json:"issues"`
}

const (
	baseConfidence  = 95
	floorConfidence = 5
	maxConfidence   = 100
)

// penalty per issue by severity. An info issue (a derived default, a
// cosmetic fixup) barely moves the score; a severe one drags the record
// toward review territory on its own.
func penalty(s Severity) int {
	switch s {
	case SeveritySevere:
		return 20
	case SeverityWarning:
		return 10
	default:
		return 3
	}
}

// Rollup computes the confidence score and status from the issue list.
// Adding issues can only lower confidence, never raise it. Status is
// needs_review when confidence drops below the threshold or any issue is
// severe; missing derived fields alone never force review.
func Rollup(issues []Issue, threshold int) Validation {
	conf := baseConfidence
	severe := false
	for _, is := range issues {
		conf -= penalty(is.Severity)
		if is.Severity == SeveritySevere {
			severe = true
		}
	}
	if conf < floorConfidence {
		conf = floorConfidence
	}
	if conf > maxConfidence {
		conf = maxConfidence
	}

	status := StatusValidated
	if severe || conf < threshold {
		status = StatusNeedsReview
	}
	return Validation{Confidence: conf, Status: status, Issues: issues}
}
