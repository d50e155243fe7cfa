package analysis

import "time"

const (
	fallbackConfidence  = 0.1
	fallbackEchoLimit   = 500
	fallbackUnavailable = "No disponible"
)

// Fallback builds the low-confidence record used when the model call or its
// parsing fails. The detailed summary echoes at most 500 characters of the transcript.
func Fallback(transcript string, elapsed time.Duration) InsightRecord {
	answers := make(map[string]string, len(AnswerKeys))
	for _, k := range AnswerKeys {
		answers[k] = fallbackUnavailable
	}

	return InsightRecord{
		ExecutiveSummary:  "Análisis no disponible por un error en el procesamiento automático",
		DetailedSummary:   "Transcripción original: " + truncateRunes(transcript, fallbackEchoLimit) + "...",
		SentimentScore:    DefaultSentiment,
		SatisfactionScore: DefaultSatisfaction,
		RetentionRisk:     DefaultRetention,
		ConfidenceScore:   fallbackConfidence,
		PrimaryReason:     "No determinado",
		SecondaryReasons:  []string{},
		StructuredAnswers: answers,
		Recommendations:   []string{"Revisar la transcripción manualmente"},
		ActionItems:       []string{"Análisis manual requerido"},
		KeyQuotes:         []string{},
		RedFlags:          []string{"Error en procesamiento automático"},
		PositiveFeedback:  []string{},
		ModelUsed:         FallbackModel,
		ProcessingSeconds: elapsed.Seconds(),
	}
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
