package api

import (
	"fmt"
	"net/http"
)

// doneFrame is the terminal SSE frame every streaming dialect ends with.
const doneFrame = "data: [DONE]\n\n"

// writeSSEHeaders sets the headers required for an event-stream response.
func writeSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// writeSSEFrame writes one "data: <raw>\n\n" frame and flushes immediately.
func writeSSEFrame(w http.ResponseWriter, flusher http.Flusher, raw []byte) {
	_, _ = fmt.Fprintf(w, "data: %s\n\n", raw)
	flusher.Flush()
}

func writeSSEDone(w http.ResponseWriter, flusher http.Flusher) {
	_, _ = fmt.Fprint(w, doneFrame)
	flusher.Flush()
}
