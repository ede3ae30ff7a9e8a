package schema

// FieldKind is the type a declared bundle field must carry.
type FieldKind int

const (
	KindString FieldKind = iota
	KindStringList
)

// FieldSpec declares one field of a bundle section.
type FieldSpec struct {
	Name string
	Kind FieldKind
}

// SectionSpec declares one top-level bundle section and its required fields.
type SectionSpec struct {
	DocType DocType
	Fields  []FieldSpec
}

// SchemaV1 is the declared shape of a v1 bundle. Stabilization, prompt
// construction, and bundle decoding all walk this table; nothing else in
// the codebase enumerates section fields.
func SchemaV1() []SectionSpec {
	return []SectionSpec{
		{
			DocType: DocTypeADR,
			Fields: []FieldSpec{
				{Name: "decision", Kind: KindString},
				{Name: "options", Kind: KindStringList},
				{Name: "risks", Kind: KindStringList},
				{Name: "assumptions", Kind: KindStringList},
				{Name: "checks", Kind: KindStringList},
				{Name: "next_actions", Kind: KindStringList},
			},
		},
		{
			DocType: DocTypeOnepager,
			Fields: []FieldSpec{
				{Name: "problem", Kind: KindString},
				{Name: "recommendation", Kind: KindString},
				{Name: "impact", Kind: KindStringList},
				{Name: "checks", Kind: KindStringList},
			},
		},
		{
			DocType: DocTypeEvalPlan,
			Fields: []FieldSpec{
				{Name: "metrics", Kind: KindStringList},
				{Name: "test_cases", Kind: KindStringList},
				{Name: "failure_criteria", Kind: KindStringList},
				{Name: "monitoring", Kind: KindStringList},
			},
		},
		{
			DocType: DocTypeOpsChecklist,
			Fields: []FieldSpec{
				{Name: "security", Kind: KindStringList},
				{Name: "reliability", Kind: KindStringList},
				{Name: "cost", Kind: KindStringList},
				{Name: "operations", Kind: KindStringList},
			},
		},
	}
}

// PromptSchemaJSON renders SchemaV1 as the JSON-schema fragment embedded in
// provider prompts. Kept as a function of the table so the prompt can never
// drift from the declared schema.
func PromptSchemaJSON() map[string]any {
	required := make([]string, 0, 4)
	properties := make(map[string]any, 4)
	for _, section := range SchemaV1() {
		required = append(required, string(section.DocType))
		fieldRequired := make([]string, 0, len(section.Fields))
		fieldProps := make(map[string]any, len(section.Fields))
		for _, f := range section.Fields {
			fieldRequired = append(fieldRequired, f.Name)
			switch f.Kind {
			case KindString:
				fieldProps[f.Name] = map[string]any{"type": "string"}
			case KindStringList:
				fieldProps[f.Name] = map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				}
			}
		}
		properties[string(section.DocType)] = map[string]any{
			"type":       "object",
			"required":   fieldRequired,
			"properties": fieldProps,
		}
	}
	return map[string]any{
		"type":       "object",
		"required":   required,
		"properties": properties,
	}
}
