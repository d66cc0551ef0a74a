package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/thaddeuskkr/whatsapp/internal/chat"
	"github.com/thaddeuskkr/whatsapp/internal/observability"
	"go.uber.org/zap"
)

type OTPHandler struct {
	source chat.Source
}

func NewOTPHandler(source chat.Source) *OTPHandler {
	return &OTPHandler{source: source}
}

// Send handles POST /otp. It formats and sends a one-time password to a chat user.
// With otp absent or "random", a zero-padded six digit code is generated.
func (h *OTPHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To       string  `json:"to"`
		From     string  `json:"from"`
		OTP      string  `json:"otp"`
		Validity float64 `json:"validity"` // seconds
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.To == "" || req.From == "" {
		WriteError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	otp := req.OTP
	if otp == "" || otp == "random" {
		n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to generate OTP")
			return
		}
		otp = fmt.Sprintf("%06d", n.Int64())
	}

	body := formatOTPMessage(otp, req.From, req.Validity)
	if err := h.source.SendMessage(r.Context(), req.To+"@c.us", body, chat.SendOptions{}); err != nil {
		observability.GetLogger(r.Context()).Error("failed to send otp",
			zap.String("to", req.To), zap.Error(err))
		WriteError(w, http.StatusBadRequest, "Failed to send OTP")
		return
	}

	WriteJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "OTP sent to " + req.To,
		Data: map[string]string{
			"to":   req.To,
			"from": req.From,
			"otp":  otp,
		},
	})
}

func formatOTPMessage(otp, from string, validitySeconds float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* is your one-time password for %s.\n", otp, from)
	b.WriteString("Do not share this OTP with anyone.")
	if validitySeconds > 0 {
		minutes := strconv.FormatFloat(validitySeconds/60, 'f', -1, 64)
		fmt.Fprintf(&b, "\nValid for %s minutes.", minutes)
	}
	return b.String()
}
