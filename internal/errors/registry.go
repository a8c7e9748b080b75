package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
	DocURL     string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Engine Errors (E001-E009)
	// ============================================

	"E001": {
		Category:   CategoryUsage,
		Message:    "SetState called on a derived store",
		Detail:     "Derived stores are read-only projections of their dependencies. Their value can only change by recomputation.",
		Suggestion: "Write to the base store the derivation reads instead.",
		DocURL:     "https://derive.dev/docs/errors/E001",
	},
	"E002": {
		Category:   CategoryRuntime,
		Message:    "Derivation panicked",
		Detail:     "A derivation function panicked while recomputing. The store kept its previous value and dependencies.",
		Suggestion: "Derivations must be pure and total over every state their dependencies can hold.",
		DocURL:     "https://derive.dev/docs/errors/E002",
	},
	"E003": {
		Category:   CategoryUsage,
		Message:    "Circular dependency detected",
		Detail:     "A derived store read itself while computing, either directly or through another derived store.",
		Suggestion: "Break the cycle by reading the base store both derivations depend on.",
		DocURL:     "https://derive.dev/docs/errors/E003",
	},
	"E004": {
		Category:   CategoryUsage,
		Message:    "Accessor used outside its derivation pass",
		Detail:     "The accessor passed to a derivation is only valid while that derivation runs. It was retained and called later.",
		Suggestion: "Do not capture the accessor in closures that outlive the derivation.",
		DocURL:     "https://derive.dev/docs/errors/E004",
	},
	"E005": {
		Category:   CategoryUsage,
		Message:    "Invalid derived store option",
		Detail:     "An option passed to derive.New does not match the store's value type or has an invalid value.",
		DocURL:     "https://derive.dev/docs/errors/E005",
	},
	"E006": {
		Category:   CategoryUsage,
		Message:    "Dependency source is not comparable",
		Detail:     "Sources are used as dependency keys and must be comparable, typically pointers.",
		Suggestion: "Pass a pointer to your store implementation.",
		DocURL:     "https://derive.dev/docs/errors/E006",
	},

	// ============================================
	// Query Errors (E010-E019)
	// ============================================

	"E010": {
		Category: CategoryQuery,
		Message:  "Query fetch failed",
		Detail:   "The query fetcher returned an error after all retries.",
		DocURL:   "https://derive.dev/docs/errors/E010",
	},

	// ============================================
	// Configuration Errors (E020-E029)
	// ============================================

	"E020": {
		Category:   CategoryConfig,
		Message:    "Invalid configuration",
		Detail:     "The configuration file could not be parsed or failed validation.",
		Suggestion: "Check derive.yaml against the documented schema.",
		DocURL:     "https://derive.dev/docs/errors/E020",
	},
	"E021": {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
		DocURL:   "https://derive.dev/docs/errors/E021",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
