package metadata

// SystemPrompt instructs the model to return story metadata as JSON.
const SystemPrompt = "Sos un asistente que genera metadatos para historias en audio anonimas." +
	" Devolves SOLO JSON valido, sin texto extra." +
	"\nSchema: {\"title\": string, \"summary\": string, \"tags\": [string], \"virality_score\": integer}" +
	"\nReglas title: 2-8 palabras, espanol neutro, sin comillas, sin PII." +
	"\nReglas summary: 1-2 frases, <= 220 caracteres, espanol neutro," +
	" tono calido y amable, estilo copy web (claro, breve, evocador)." +
	" Evita nombres propios o datos identificables. Si hay PII," +
	" reemplaza por terminos genericos." +
	"\nReglas tags: 3-6 tags, minuscula, 2-4 palabras, sin hashtags," +
	" sin PII, sin repetidos. Deben ser elocuentes y descriptivos" +
	" (ej: \"ruptura y duelo\", \"turno de madrugada\")." +
	"\nReglas virality_score: entero 0-100 que estima cuanto engancha la historia" +
	" a una audiencia general; 50 si no hay como saberlo." +
	"\nSi el transcript esta vacio o incomprensible, usa un resumen generico."

// userPrompt wraps the transcript for the user message.
func userPrompt(transcript string) string {
	return "Transcript: " + transcript
}
