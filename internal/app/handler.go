package app

import (
	"net/http"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/nevindra/courier/coalesce"
	"github.com/nevindra/courier/twiml"
)

// Handler returns the Twilio webhook handler. The first request of a
// coalesced burst carries the reply; the others get an empty response.
func (a *App) Handler() http.Handler {
	return http.HandlerFunc(a.serveWebhook)
}

func (a *App) serveWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	from := r.PostForm.Get("From")
	body := r.PostForm.Get("Body")

	// Delivery status callbacks carry no body.
	if strings.TrimSpace(body) == "" && (r.PostForm.Get("MessageStatus") != "" || r.PostForm.Get("SmsStatus") != "") {
		a.logger.Debug("status callback", "from", from, "sid", r.PostForm.Get("MessageSid"))
		writeTwiML(w, twiml.Empty())
		return
	}

	sender := NormalizeSender(from)
	if sender == "" || strings.TrimSpace(body) == "" {
		http.Error(w, "missing From or Body", http.StatusBadRequest)
		return
	}
	body = norm.NFC.String(body)

	sub := a.coalescer.Submit(sender, body)
	if !sub.First {
		writeTwiML(w, twiml.Empty())
		return
	}
	text, err := coalesce.Wait(r.Context(), sub)
	if err != nil {
		a.logger.Warn("coalesced turn abandoned", "sender", sender, "error", err)
		return
	}

	reply := a.Respond(r.Context(), sender, text)
	writeTwiML(w, twiml.Assemble(twiml.PlainText(reply), a.segmentBytes()))
}

func (a *App) segmentBytes() int {
	if a.pipeline.SegmentBytes > 0 {
		return a.pipeline.SegmentBytes
	}
	return twiml.DefaultSegmentBytes
}

func writeTwiML(w http.ResponseWriter, doc []byte) {
	w.Header().Set("Content-Type", twiml.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// NormalizeSender reduces a Twilio From value ("whatsapp:+1 555-0100",
// "+15550100") to its digits so SMS and WhatsApp share one sender key.
func NormalizeSender(from string) string {
	from = strings.TrimSpace(from)
	if len(from) >= len("whatsapp:") && strings.EqualFold(from[:len("whatsapp:")], "whatsapp:") {
		from = from[len("whatsapp:"):]
	}
	var b strings.Builder
	for _, r := range from {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
