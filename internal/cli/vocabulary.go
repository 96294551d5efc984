package cli

import "vocab-battle/internal/domain"

// sampleVocabulary is the built-in word list used when no Postgres is configured.
func sampleVocabulary() []domain.VocabularyWord {
	return []domain.VocabularyWord{
		{ID: "sat-001", Word: "Abate", Definition: "To become less intense or widespread"},
		{ID: "sat-002", Word: "Benevolent", Definition: "Well-meaning and kindly"},
		{ID: "sat-003", Word: "Candid", Definition: "Truthful and straightforward; frank"},
		{ID: "sat-004", Word: "Diligent", Definition: "Showing care and effort in one's work"},
		{ID: "sat-005", Word: "Eloquent", Definition: "Fluent or persuasive in speaking or writing"},
		{ID: "sat-006", Word: "Frugal", Definition: "Sparing or economical with money or food"},
		{ID: "sat-007", Word: "Gregarious", Definition: "Fond of company; sociable"},
		{ID: "sat-008", Word: "Hackneyed", Definition: "Lacking significance through overuse"},
		{ID: "sat-009", Word: "Impetuous", Definition: "Acting quickly without thought or care"},
		{ID: "sat-010", Word: "Juxtapose", Definition: "To place close together for contrasting effect"},
		{ID: "sat-011", Word: "Laconic", Definition: "Using very few words"},
		{ID: "sat-012", Word: "Meticulous", Definition: "Showing great attention to detail"},
		{ID: "sat-013", Word: "Nefarious", Definition: "Wicked or criminal"},
		{ID: "sat-014", Word: "Obstinate", Definition: "Stubbornly refusing to change one's opinion"},
		{ID: "sat-015", Word: "Pragmatic", Definition: "Dealing with things sensibly and realistically"},
		{ID: "sat-016", Word: "Quell", Definition: "To put an end to, typically by force"},
		{ID: "sat-017", Word: "Resilient", Definition: "Able to recover quickly from difficulties"},
		{ID: "sat-018", Word: "Scrutinize", Definition: "To examine closely and thoroughly"},
		{ID: "sat-019", Word: "Tenacious", Definition: "Holding firmly to something; persistent"},
		{ID: "sat-020", Word: "Ubiquitous", Definition: "Present, appearing, or found everywhere"},
	}
}
