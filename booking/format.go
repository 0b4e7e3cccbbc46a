package booking

import (
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

func formatFloat(v float64) string {
	// sem notação científica para valores comuns
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// retryAfter converte para segundos inteiros do Retry-After, arredondando para cima
// e nunca abaixo de 1.
func retryAfter(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return formatInt(secs)
}
