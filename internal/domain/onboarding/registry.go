package onboarding

// Reference names a remote list that can back a dropdown.
type Reference string

const (
	ReferenceNone      Reference = ""
	ReferenceCountries Reference = "countries"
	ReferenceGoals     Reference = "goals"
	ReferenceTopics    Reference = "topics"
	ReferenceBudgets   Reference = "budgets"
	ReferenceLanguages Reference = "languages"
)

// References lists every remote list loaded when a wizard starts.
var References = []Reference{
	ReferenceCountries,
	ReferenceGoals,
	ReferenceTopics,
	ReferenceBudgets,
	ReferenceLanguages,
}

type FieldSpec struct {
	Field       Field
	Icon        string
	Placeholder string
	Reference   Reference
	Fallback    []string
}

var registry = map[Field]FieldSpec{
	FieldGender: {
		Field:       FieldGender,
		Icon:        "gender",
		Placeholder: "Select your gender",
		Fallback:    []string{string(GenderMale), string(GenderFemale), string(GenderOther)},
	},
	FieldGoal: {
		Field:       FieldGoal,
		Icon:        "target",
		Placeholder: "Select your goal",
		Reference:   ReferenceGoals,
		Fallback:    []string{"Career growth", "Study abroad", "Travel", "Exam preparation", "Personal interest"},
	},
	FieldFocusTopic: {
		Field:       FieldFocusTopic,
		Icon:        "book",
		Placeholder: "Select a focus topic",
		Reference:   ReferenceTopics,
		Fallback:    []string{"Speaking", "Listening", "Grammar", "Vocabulary", "Writing", "Business English"},
	},
	FieldEnglishLevel: {
		Field:       FieldEnglishLevel,
		Icon:        "level",
		Placeholder: "Select your level",
		Fallback:    []string{"Beginner", "Elementary", "Intermediate", "Upper Intermediate", "Advanced"},
	},
	FieldCountry: {
		Field:       FieldCountry,
		Icon:        "globe",
		Placeholder: "Select your country",
		Reference:   ReferenceCountries,
		Fallback:    []string{"United States", "United Kingdom", "Canada", "Australia", "India", "Other"},
	},
	FieldLanguage: {
		Field:       FieldLanguage,
		Icon:        "language",
		Placeholder: "Select your language",
		Reference:   ReferenceLanguages,
		Fallback:    []string{"English", "Spanish", "French", "Hindi", "Arabic", "Other"},
	},
	FieldBudget: {
		Field:       FieldBudget,
		Icon:        "wallet",
		Placeholder: "Select your budget",
		Reference:   ReferenceBudgets,
		Fallback:    []string{"Under $10", "$10 - $20", "$20 - $40", "Over $40"},
	},
}

// Registry returns the spec of a dropdown field.
func Registry(field Field) (FieldSpec, bool) {
	spec, ok := registry[field]
	if !ok {
		return FieldSpec{}, false
	}
	spec.Fallback = append([]string(nil), spec.Fallback...)
	return spec, true
}

// DropdownFields lists registry fields in step order.
func DropdownFields() []Field {
	return []Field{
		FieldGender,
		FieldGoal,
		FieldFocusTopic,
		FieldEnglishLevel,
		FieldCountry,
		FieldLanguage,
		FieldBudget,
	}
}
