// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the trial-extractor pipeline:
// catalog field identifiers, publication records, and stage configuration.
package types

// Field is the canonical name of a catalog field, e.g. "Objective response
// rate (ORR)". Values of this type have already passed through the catalog's
// canonicalization step; raw model keys are plain strings until then.
type Field string

// SemanticType selects the normalization rule applied to a field's value.
type SemanticType string

const (
	TypePercentage     SemanticType = "percentage"
	TypeDurationMonths SemanticType = "duration_months"
	TypeNumeric        SemanticType = "numeric"
	TypeIdentifier     SemanticType = "identifier"
	TypePValue         SemanticType = "p_value"
	TypeYesNo          SemanticType = "yes_no"
	TypeDate           SemanticType = "date"
	TypeFreeText       SemanticType = "free_text"
)

// Scope says whether a field is extracted once per publication or once per arm.
type Scope string

const (
	ScopeShared      Scope = "shared"
	ScopeArmSpecific Scope = "arm_specific"
)

// Category groups fields by what they describe. The category decides the
// missing-value sentinel: safety fields use "NA", all others use "".
type Category string

const (
	CategoryPublication Category = "publication"
	CategoryTreatment   Category = "treatment"
	CategoryEfficacy    Category = "efficacy"
	CategorySafety      Category = "safety"
)

// EventClass is one of the three mutually exclusive adverse-event classes a
// publication may report for an arm.
type EventClass string

const (
	ClassAE   EventClass = "AE"
	ClassTEAE EventClass = "TEAE"
	ClassTRAE EventClass = "TRAE"
)

// Sentinel values carried in normalized records.
const (
	// MissingEfficacy marks an absent value for non-safety fields.
	MissingEfficacy = ""
	// MissingSafety marks an absent value for safety fields.
	MissingSafety = "NA"
	// NotReached marks a time-to-event endpoint that was not reached or not estimable.
	NotReached = "NR"
)

// Well-known fields the pipeline addresses directly.
const (
	FieldNCTNumber        Field = "NCT Number"
	FieldPublicationName  Field = "Publication Name"
	FieldTrialName        Field = "Trial name"
	FieldCancerType       Field = "Cancer Type"
	FieldPhase            Field = "Clinical Trial Phase"
	FieldSponsors         Field = "Sponsors"
	FieldSponsorType      Field = "Research Sponsor Type"
	FieldGenericName      Field = "Generic name"
	FieldNumberOfPatients Field = "Number of patients"
	FieldLineOfTreatment  Field = "Line of Treatment"
	FieldTherapyType      Field = "Type of therapy"
	FieldSafetyClass      Field = "safety_event_class"
	FieldStudyStart       Field = "Study start date"
	FieldStudyCompletion  Field = "Study completion date"
	FieldPDFNumber        Field = "PDF number"
)
