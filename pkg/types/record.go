// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ArmDescriptor is one treatment arm as reported by the discovery call.
type ArmDescriptor struct {
	ArmID            string `json:"arm_id" yaml:"arm_id" jsonschema:"required,description=Discovery-assigned identifier such as A1"`
	GenericName      string `json:"generic_name" yaml:"generic_name" jsonschema:"required,description=Drug or combination joined with +"`
	NumberOfPatients string `json:"number_of_patients" yaml:"number_of_patients" jsonschema:"required,description=Patients treated in this arm"`
	NCTNumber        string `json:"nct_number" yaml:"nct_number" jsonschema:"required,description=Registry identifier NCT followed by 8 digits"`
	TrialName        string `json:"trial_name" yaml:"trial_name" jsonschema:"required,description=Keynote-N Checkmate-N Masterkey-N or No Name"`

	// SafetyEventClass is set once the safety header chunk has classified
	// the arm. It is never requested from discovery.
	SafetyEventClass EventClass `json:"-" yaml:"-"`
}

// DiscoveryResult is the decoded discovery response.
type DiscoveryResult struct {
	TreatmentArms []ArmDescriptor `json:"treatment_arms" yaml:"treatment_arms" jsonschema:"required"`
}

// TreatmentArm is one finalized arm with its normalized field values.
type TreatmentArm struct {
	ArmID            string           `json:"arm_id" yaml:"arm_id"`
	GenericName      string           `json:"generic_name" yaml:"generic_name"`
	NumberOfPatients string           `json:"number_of_patients" yaml:"number_of_patients"`
	SafetyEventClass EventClass       `json:"safety_event_class,omitempty" yaml:"safety_event_class,omitempty"`
	Values           map[Field]string `json:"values" yaml:"values"`
}

// Value returns the arm's value for f, or "" if absent.
func (a TreatmentArm) Value(f Field) string {
	return a.Values[f]
}

// PublicationRecord is the merged, normalized result for one document.
type PublicationRecord struct {
	DocumentID string           `json:"document_id" yaml:"document_id"`
	NCTNumber  string           `json:"NCT_number" yaml:"NCT_number"`
	Shared     map[Field]string `json:"shared" yaml:"shared"`
	Arms       []TreatmentArm   `json:"treatment_arms" yaml:"treatment_arms"`
	Metadata   Metadata         `json:"extraction_metadata" yaml:"extraction_metadata"`
}

// PublicationName returns the formatted publication citation.
func (r *PublicationRecord) PublicationName() string { return r.Shared[FieldPublicationName] }

// TrialName returns the trial family name or "No Name".
func (r *PublicationRecord) TrialName() string { return r.Shared[FieldTrialName] }

// Phase returns the clinical trial phase class.
func (r *PublicationRecord) Phase() string { return r.Shared[FieldPhase] }

// CancerType returns the cancer type class.
func (r *PublicationRecord) CancerType() string { return r.Shared[FieldCancerType] }

// SponsorClassification returns the industry/non-industry sponsor class.
func (r *PublicationRecord) SponsorClassification() string { return r.Shared[FieldSponsorType] }

// ValidationStatus is the overall outcome of the validation stage.
type ValidationStatus string

const (
	StatusValidated     ValidationStatus = "validated"
	StatusWarningsFound ValidationStatus = "warnings_found"
	StatusErrorsFound   ValidationStatus = "errors_found"
)

// ChunkIssueKind classifies a chunk-level problem that did not abort the document.
type ChunkIssueKind string

const (
	// IssueTransport means the LLM call failed after retries.
	IssueTransport ChunkIssueKind = "transport"
	// IssueUnparsable means no JSON object could be recovered from the reply.
	IssueUnparsable ChunkIssueKind = "unparsable"
	// IssueLowConfidence means the reply was recovered without the expected marker
	// key, or only through lenient repair.
	IssueLowConfidence ChunkIssueKind = "low_confidence"
)

// ChunkIssue records one chunk-level problem.
type ChunkIssue struct {
	Chunk   int            `json:"chunk" yaml:"chunk"`
	ArmID   string         `json:"arm_id,omitempty" yaml:"arm_id,omitempty"`
	Kind    ChunkIssueKind `json:"kind" yaml:"kind"`
	Message string         `json:"message" yaml:"message"`
}

// Metadata is the bookkeeping attached to a finished record.
type Metadata struct {
	RunID            string           `json:"run_id" yaml:"run_id"`
	ArmsDiscovered   int              `json:"arms_discovered" yaml:"arms_discovered"`
	ArmsProcessed    int              `json:"arms_processed" yaml:"arms_processed"`
	TotalLLMCalls    int              `json:"total_llm_calls" yaml:"total_llm_calls"`
	PromptTokens     int64            `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens int64            `json:"completion_tokens" yaml:"completion_tokens"`
	TotalCost        float64          `json:"total_cost" yaml:"total_cost"`
	ExtractionDate   time.Time        `json:"extraction_date" yaml:"extraction_date"`
	Model            string           `json:"model,omitempty" yaml:"model,omitempty"`
	ChunkIssues      []ChunkIssue     `json:"chunk_issues,omitempty" yaml:"chunk_issues,omitempty"`
	Errors           []string         `json:"validation_errors,omitempty" yaml:"validation_errors,omitempty"`
	Warnings         []string         `json:"validation_warnings,omitempty" yaml:"validation_warnings,omitempty"`
	Status           ValidationStatus `json:"validation_status" yaml:"validation_status"`
}
