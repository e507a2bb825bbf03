package analysis

const (
	reasonCritical     = "Critical errors detected that require immediate correction"
	reasonConfig       = "Additional configuration or optimization required"
	reasonImprovements = "Optional improvements identified"
)

var (
	fixErrors       = []string{"Fix identified errors", "Validate fixes"}
	completeConfig  = []string{"Complete additional configuration", "Verify configuration"}
	applyOptimizing = []string{"Implement optimizations", "Measure performance improvements"}
	improve         = []string{"Implement suggested improvements"}
)

// DefaultEntries returns the built-in pattern table, highest tier first.
// Patterns accept both the English and the Spanish phrasing tools emit.
func DefaultEntries() []Entry {
	return []Entry{
		{Pattern: `(?im)❌.*ERRORS?\s+(FOUND|ENCONTRADOS?)`, Priority: PriorityHigh, Confidence: 0.92, Reason: reasonCritical, Fallback: fixErrors},
		{Pattern: `(?im)⚠\x{FE0F}?.*(PROBLEMS\s+DETECTED|PROBLEMAS\s+DETECTADOS)`, Priority: PriorityHigh, Confidence: 0.90, Reason: reasonCritical, Fallback: fixErrors},
		{Pattern: `(?im)❌.*(FAILED|FALLÓ)`, Priority: PriorityHigh, Confidence: 0.90, Reason: reasonCritical, Fallback: fixErrors},
		{Pattern: `(?im)(CRITICAL\s+ERROR|ERROR.*CR[IÍ]TICO)`, Priority: PriorityHigh, Confidence: 0.88, Reason: reasonCritical, Fallback: fixErrors},
		{Pattern: `(?im)(SYSTEM\s+FAILURE|FALLO.*SISTEMA)`, Priority: PriorityHigh, Confidence: 0.86, Reason: reasonCritical, Fallback: fixErrors},

		{Pattern: `(?im)⚠\x{FE0F}?.*(ADDITIONAL\s+CONFIGURATION\s+REQUIRED|CONFIGURACI[OÓ]N\s+ADICIONAL\s+REQUERIDA)`, Priority: PriorityMedium, Confidence: 0.80, Reason: reasonConfig, Fallback: completeConfig},
		{Pattern: `(?im)🔍.*(INCOMPLETE\s+ANALYSIS|AN[AÁ]LISIS\s+INCOMPLETO)`, Priority: PriorityMedium, Confidence: 0.75, Reason: reasonConfig, Fallback: completeConfig},
		{Pattern: `(?im)⚠\x{FE0F}?.*(INSUFFICIENT\s+COVERAGE|COBERTURA\s+INSUFICIENTE)`, Priority: PriorityMedium, Confidence: 0.78, Reason: reasonConfig, Fallback: applyOptimizing},
		{Pattern: `(?im)🔧.*(OPTIMI[SZ]ATION\s+REQUIRED|OPTIMIZACI[OÓ]N\s+REQUERIDA)`, Priority: PriorityMedium, Confidence: 0.78, Reason: reasonConfig, Fallback: applyOptimizing},
		{Pattern: `(?im)🔍.*(ADDITIONAL\s+TESTING\s+REQUIRED|TESTING\s+ADICIONAL\s+REQUERIDO)`, Priority: PriorityMedium, Confidence: 0.72, Reason: reasonConfig, Fallback: completeConfig},

		{Pattern: `(?im)💡.*(SUGGESTED\s+IMPROVEMENTS|MEJORAS\s+SUGERIDAS)`, Priority: PriorityLow, Confidence: 0.70, Reason: reasonImprovements, Fallback: improve},
		{Pattern: `(?im)💡.*(RECOMMENDATIONS|RECOMENDACIONES)`, Priority: PriorityLow, Confidence: 0.68, Reason: reasonImprovements, Fallback: improve},
		{Pattern: `(?im)🔍.*(MONITORING\s+RECOMMENDED|MONITOREO\s+RECOMENDADO)`, Priority: PriorityLow, Confidence: 0.66, Reason: reasonImprovements, Fallback: improve},
		{Pattern: `(?im)💡.*(NEXT\s+STEPS|PR[OÓ]XIMOS\s+PASOS)`, Priority: PriorityLow, Confidence: 0.64, Reason: reasonImprovements, Fallback: improve},
		{Pattern: `(?im)💡.*(CONSIDER\s+IMPLEMENTING|CONSIDERAR\s+IMPLEMENTAR)`, Priority: PriorityLow, Confidence: 0.62, Reason: reasonImprovements, Fallback: improve},
	}
}

// DefaultSuggestions returns the keyword table used to name follow-up steps.
func DefaultSuggestions() []Suggestion {
	return []Suggestion{
		{Pattern: `(?i)external\s+api|API\s+externa`, Title: "Configure external API integration"},
		{Pattern: `(?i)performance|rendimiento`, Title: "Optimize system performance"},
		{Pattern: `(?i)database|base\s+de\s+datos`, Title: "Optimize database queries"},
		{Pattern: `(?i)\btests?\b|\btesting\b`, Title: "Implement additional tests"},
		{Pattern: `(?i)security|seguridad`, Title: "Harden security measures"},
		{Pattern: `(?i)monitoring|monitoreo|\blogs\b`, Title: "Set up monitoring"},
		{Pattern: `(?i)backup`, Title: "Implement backup system"},
		{Pattern: `SSL|(?i:certificate|certificado)`, Title: "Configure SSL certificates"},
	}
}
