package analysis

import (
	"fmt"
	"strings"
)

// SystemPromptSpanish frames the model as an HR analyst that answers in JSON only.
const SystemPromptSpanish = `Eres un analista experto de recursos humanos especializado en entrevistas de salida. Responde ÚNICAMENTE con un objeto JSON válido, sin texto adicional.`

// exitQuestionsSpanish are the four questions every exit interview covers.
var exitQuestionsSpanish = []string{
	"¿Cuál es la razón principal por la que dejas la empresa?",
	"¿Recibiste apoyo de tu jefe y compañeros? ¿Te sentiste valorado?",
	"¿Consideras que tuviste oportunidades de desarrollo y crecimiento?",
	"¿Qué podemos hacer para mejorar?",
}

const responseShapeSpanish = `{
  "executive_summary": "Resumen ejecutivo de 2 a 3 párrafos para la dirección",
  "detailed_summary": "Análisis detallado de la entrevista",
  "sentiment_score": número entre -1 y 1 (-1 muy negativo, 0 neutral, 1 muy positivo),
  "satisfaction_score": número entre 0 y 10,
  "retention_risk": número entre 0 y 1 (probabilidad de que empleados similares se vayan),
  "primary_reason": "Razón principal de salida en una frase",
  "secondary_reasons": ["razones secundarias"],
  "answers_structured": {
    "razon_principal": "respuesta a la pregunta 1",
    "apoyo_valoracion": "respuesta a la pregunta 2",
    "desarrollo_crecimiento": "respuesta a la pregunta 3",
    "sugerencias_mejora": "respuesta a la pregunta 4"
  },
  "recommendations": ["recomendaciones específicas"],
  "action_items": ["acciones concretas inmediatas"],
  "confidence_score": número entre 0 y 1 (confianza en el análisis),
  "key_quotes": ["citas textuales relevantes"],
  "red_flags": ["señales de alerta para la organización"],
  "positive_feedback": ["aspectos positivos mencionados"]
}`

// BuildPrompt renders the user prompt for one transcript. The output depends
// only on its inputs.
func BuildPrompt(transcript string, ec *EmployeeContext) string {
	var b strings.Builder

	b.WriteString("Analiza la siguiente entrevista de salida.\n\n")

	if ec != nil {
		b.WriteString("Información del empleado:\n")
		fmt.Fprintf(&b, "- Departamento: %s\n", orUnspecified(ec.Department))
		fmt.Fprintf(&b, "- Posición: %s\n", orUnspecified(ec.Position))
		fmt.Fprintf(&b, "- Tiempo en la empresa: %d meses\n\n", ec.TenureMonths)
	}

	b.WriteString("TRANSCRIPCIÓN:\n")
	b.WriteString(transcript)
	b.WriteString("\n\nPREGUNTAS CLAVE EVALUADAS:\n")
	for i, q := range exitQuestionsSpanish {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}

	b.WriteString("\nDevuelve un único objeto JSON con esta estructura:\n")
	b.WriteString(responseShapeSpanish)
	b.WriteString("\n\nIMPORTANTE:\n")
	b.WriteString("- Responde solo con el JSON, sin bloques de código ni comentarios.\n")
	b.WriteString("- Respeta los rangos numéricos indicados.\n")
	b.WriteString("- Señala patrones que indiquen problemas sistémicos.\n")

	return b.String()
}

func orUnspecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return "No especificado"
	}
	return s
}
