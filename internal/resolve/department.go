package resolve

import (
	"madgrades-sync/internal/domain"
	"madgrades-sync/internal/store"
)

// DefaultSubjectOverrides maps catalog subject abbreviations whose internal
// department code differs by more than spacing or punctuation.
var DefaultSubjectOverrides = map[string]string{
	"COMP SCI": "CS",
	"GEN BUS":  "GB",
	"ACCT I S": "ACCT",
	"INTER-AG": "INTER AG",
	"LSC":      "LIFE SCI COMM",
}

func mergeOverrides(extra map[string]string) map[string]string {
	out := make(map[string]string, len(DefaultSubjectOverrides)+len(extra))
	for k, v := range DefaultSubjectOverrides {
		out[domain.NormalizeCode(k)] = v
	}
	for k, v := range extra {
		out[domain.NormalizeCode(k)] = v
	}
	return out
}

// departmentFor resolves a subject abbreviation: exact code, then override
// table, then loose alnum key.
func departmentFor(abbr string, overrides map[string]string, l *store.Lookups) (store.Department, bool) {
	key := domain.NormalizeCode(abbr)
	if key == "" {
		return store.Department{}, false
	}
	if d, ok := l.DepartmentsByCode[key]; ok {
		return d, true
	}
	if target, ok := overrides[key]; ok {
		if d, ok := l.DepartmentsByCode[domain.NormalizeCode(target)]; ok {
			return d, true
		}
		if d, ok := l.DepartmentsByLoose[domain.LooseKey(target)]; ok {
			return d, true
		}
	}
	if d, ok := l.DepartmentsByLoose[domain.LooseKey(key)]; ok {
		return d, true
	}
	return store.Department{}, false
}
