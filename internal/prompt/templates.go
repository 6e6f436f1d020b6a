// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package prompt

import (
	"strings"
	"text/template"
)

const systemLine = `SYSTEM: You are a precise clinical data extractor. Temperature 0. Never guess.`

var funcs = template.FuncMap{"join": strings.Join}

// discoveryTmpl asks for the list of treatment arms and the registry number.
var discoveryTmpl = template.Must(template.New("discovery").Funcs(funcs).Parse(systemLine + `

RULES:
1. A treatment arm is one regimen: a single drug, a combination, or a distinct dose of the same drug. A publication may report one arm or many.
2. Every publication should report an NCT number, "NCT" followed by 8 digits. If none is mentioned, leave nct_number empty.
3. Join the drugs of a combination with " + ". For dose-ranging arms include the dose, e.g. "Nivolumab 3mg/kg".
4. The trial name is Keynote-N, Checkmate-N or Masterkey-N only. Otherwise use "No Name".
5. Give each arm its own patient count. Never sum patients across arms.
6. Ignore maintenance phases, crossover treatments and post-progression treatments.

DISCOVER all treatment arms in this publication.
Reply with one raw JSON object that matches this schema. Do not wrap the reply in markdown code fences and do not add commentary.
{{.Schema}}

Example:
{"treatment_arms": [{"arm_id": "A1", "generic_name": "Drug A + Drug B", "number_of_patients": "50", "nct_number": "NCT01234567", "trial_name": "No Name"}]}

PUBLICATION TEXT:
{{.Text}}
`))

// chunkTmpl asks for one chunk's fields, for one arm or for the publication.
var chunkTmpl = template.Must(template.New("chunk").Funcs(funcs).Parse(systemLine + `
{{if .Arm}}
EXTRACT fields for ARM: {{.Arm.ArmID}} - {{.Arm.GenericName}}
Patient count: {{.Arm.NumberOfPatients}}
NCT: {{.Arm.NCTNumber}}

Only extract data reported for this arm. Do not copy values from other treatment arms.
Each field holds exactly one value, never a list such as "(1, 2, 0)".
{{else}}
EXTRACT publication-level fields shared by all treatment arms.
{{end}}
Section: {{.Title}}
If a field is not explicitly reported, output {{.MissingText}}.
Reply with one raw JSON object with exactly this structure. Do not wrap the reply in markdown code fences and do not add commentary.
{
  "treatment_arms": [
    {
{{.FieldList}}
    }
  ]
}
{{if .Safety}}
SAFETY CLASS RULES:
1. First decide which ONE adverse-event class this arm's safety data is reported as: AE (adverse events), TEAE (treatment-emergent adverse events) or TRAE (treatment-related adverse events).
2. Record that class in "safety_event_class" when the field is requested.
3. Extract values only for that class. Output "NA" for fields of the other two classes.
4. If grades 3, 4 and 5 are reported separately, the Grade 3+ value is their sum.
5. In "n (%)" cells take the percentage in parentheses, never the patient count: "97 (31)" gives 31.
6. "<1%" gives 1, "<0.5%" gives 0.5, "No discontinuation occurred" gives 0.
{{- if .Class}}
7. This arm's safety data is reported as {{.Class}}. Extract only {{.Class}} values.
{{- end}}
{{end}}
{{- if .Vocabularies}}
ALLOWED VALUES (use one of the listed values exactly as written):
{{range .Vocabularies}}- {{.Field}}: {{join .Values " | "}}
{{end}}{{end}}
{{- if .Hints}}
FIELD NOTES:
{{range .Hints}}- {{.Field}}: {{.Hint}}
{{end}}{{end}}
RULES:
- One value per field. Numbers only, without units or percent signs: "45%" gives 45.
- From "n (%) 7 (18)" take the percentage: 18.
- Survival and time-to-event values are in months. "12.0 (8.2-17.1)" gives 12.0.
- "Not reached" or "NR" gives "NR".
- p-values: p > 0.05 is "Non-Significant", 0.001 < p <= 0.05 is "Significant", p <= 0.001 is "Highly Significant".
- Dates are YYYY-MM-DD.
- Yes/no fields are "YES" or "NO".
{{if .Tables}}
TABLES:
{{.Tables}}
{{end}}
PUBLICATION TEXT:
{{.Text}}
`))
