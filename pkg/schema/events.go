// pkg/schema/events.go
package schema

import "strings"

// Code is a redemption code in display form: four hyphen-joined groups of
// four characters, e.g. "ABCD-1234-EFGH-5678".
type Code string

// CodeLength is the number of alphanumeric characters in a raw code.
const CodeLength = 16

// FormatCode renders a raw 16-character alphanumeric run in display form.
// The input is assumed to be exactly CodeLength characters of [A-Z0-9].
func FormatCode(raw string) Code {
	var b strings.Builder
	b.Grow(CodeLength + 3)
	for i := 0; i < len(raw); i += 4 {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(raw[i : i+4])
	}
	return Code(b.String())
}

// Compact returns the code without group separators.
func (c Code) Compact() string {
	return strings.ReplaceAll(string(c), "-", "")
}

func (c Code) String() string { return string(c) }

// Outcome is the terminal status of one redemption attempt.
type Outcome string

const (
	OutcomeSuccess       Outcome = "SUCCESS"
	OutcomeSuccessDryRun Outcome = "SUCCESS_DRY_RUN"
	OutcomeInvalid       Outcome = "INVALID"
	OutcomeAlreadyUsed   Outcome = "ALREADY_USED"
	OutcomeLoginRequired Outcome = "LOGIN_REQUIRED"
	OutcomeUnknownError  Outcome = "UNKNOWN_ERROR"
	OutcomeTransport     Outcome = "TRANSPORT_ERROR"
)

// Outcomes lists every terminal status a submission can end in.
func Outcomes() []Outcome {
	return []Outcome{
		OutcomeSuccess,
		OutcomeSuccessDryRun,
		OutcomeInvalid,
		OutcomeAlreadyUsed,
		OutcomeLoginRequired,
		OutcomeUnknownError,
		OutcomeTransport,
	}
}

// ImageReceived is published by a channel bridge whenever a candidate image
// shows up. Payload carries the raw image bytes, base64-encoded on the wire.
type ImageReceived struct {
	ID         string `json:"id"`
	Origin     string `json:"origin"`
	Payload    []byte `json:"payload"`
	HappenedAt int64  `json:"happened_at"`
}

// RedemptionDone reports the terminal outcome of one code submission.
type RedemptionDone struct {
	ID         string  `json:"id"`
	Code       Code    `json:"code"`
	Status     Outcome `json:"status"`
	WorkerID   int     `json:"worker_id"`
	DurationMs int64   `json:"duration_ms"`
	HappenedAt int64   `json:"happened_at"`
}
