package config

// ApplyDefaults fills in the header fields when a rule file omits them. It
// is called after parsing and before validation.
func ApplyDefaults(rf *RuleFile) {
	if rf.APIVersion == "" {
		rf.APIVersion = APIVersion
	}
	if rf.Kind == "" {
		rf.Kind = Kind
	}
}
