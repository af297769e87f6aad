package openrouter

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

// Classification is the verdict on one backend attempt.
type Classification struct {
	Kind     domain.ErrorKind
	Status   int
	Code     string
	Provider string
	Message  string
}

// OK reports a usable completion.
func (c Classification) OK() bool { return c.Kind == domain.KindNone }

// Heuristic maps a status and provider message to a kind when the structured
// fields of the error body are not conclusive. It returns KindNone to defer
// to the status-based default.
type Heuristic func(status int, message string) domain.ErrorKind

// Classifier turns (status, body, transport error) into a Classification.
type Classifier struct {
	Heuristic Heuristic
}

// DefaultClassifier uses MessageHeuristic.
var DefaultClassifier = Classifier{Heuristic: MessageHeuristic}

// Classify inspects one attempt. Structured signals come first: transport
// errors, status class, provider metadata, the completion shape. Message text
// is only consulted for 4xx answers through the Heuristic seam.
func (c Classifier) Classify(status int, body []byte, transportErr error) Classification {
	if transportErr != nil {
		return Classification{Kind: domain.KindTransient, Message: transportErr.Error()}
	}
	out := Classification{Status: status}
	var errObj gjson.Result
	if gjson.ValidBytes(body) {
		errObj = gjson.GetBytes(body, "error")
	}
	if errObj.Exists() {
		out.Message = errObj.Get("message").String()
		out.Code = errObj.Get("code").String()
		out.Provider = errObj.Get("metadata.provider_name").String()
		if out.Message == "" && errObj.Type == gjson.String {
			out.Message = errObj.String()
		}
	}

	if status == http.StatusOK {
		if errObj.Exists() {
			// Some upstream failures arrive as 200 with an error body and a numeric code.
			if code := int(errObj.Get("code").Int()); code >= 400 {
				return c.Classify(code, body, nil)
			}
			out.Kind = domain.KindModelUnavailable
			return out
		}
		if msg := completionShapeError(body); msg != "" {
			out.Kind = domain.KindMalformedResponse
			out.Message = msg
			return out
		}
		return out
	}

	if out.Message == "" {
		out.Message = snippet(body)
	}

	switch {
	case status == http.StatusRequestTimeout || status >= 500:
		out.Kind = domain.KindTransient
		return out
	case status < 400:
		out.Kind = domain.KindMalformedResponse
		out.Message = fmt.Sprintf("unexpected status %d", status)
		return out
	}

	// Provider metadata means the routed upstream refused, not our key.
	if out.Provider != "" && status != http.StatusUnauthorized && status != http.StatusPaymentRequired {
		out.Kind = domain.KindModelUnavailable
		return out
	}

	h := c.Heuristic
	if h == nil {
		h = MessageHeuristic
	}
	if k := h(status, out.Message); k != domain.KindNone {
		out.Kind = k
		return out
	}

	switch status {
	case http.StatusUnauthorized, http.StatusPaymentRequired:
		out.Kind = domain.KindCredentialExhausted
	case http.StatusTooManyRequests:
		out.Kind = domain.KindTransient
	case http.StatusForbidden, http.StatusNotFound:
		out.Kind = domain.KindModelUnavailable
	default:
		out.Kind = domain.KindRejected
	}
	return out
}

// completionShapeError returns "" when body holds choices[0].message.content.
func completionShapeError(body []byte) string {
	if !gjson.ValidBytes(body) {
		return "response body is not JSON"
	}
	content := gjson.GetBytes(body, "choices.0.message.content")
	switch {
	case !content.Exists():
		return "response has no choices[0].message.content"
	case content.Type != gjson.String:
		return "choices[0].message.content is not a string"
	case strings.TrimSpace(content.String()) == "":
		return "choices[0].message.content is empty"
	}
	return ""
}

// Message fragments used by MessageHeuristic. Credential markers win over
// model markers because account-level messages often mention models too.
var (
	credentialMarkers = []string{
		"api key", "key limit", "credits", "afford", "auth credentials",
		"invalid key", "user not found", "free-models-per",
	}
	modelMarkers = []string{
		"model", "provider", "upstream", "data policy", "no endpoints",
		"not available", "unavailable", "not supported", "moderation",
	}
)

// MessageHeuristic classifies by provider message text. Generic rate-limit
// wording carries no marker and is left to the status default, so a
// per-minute 429 never burns a credential.
func MessageHeuristic(status int, message string) domain.ErrorKind {
	msg := strings.ToLower(message)
	quotaStatus := status == http.StatusUnauthorized || status == http.StatusPaymentRequired ||
		status == http.StatusForbidden || status == http.StatusTooManyRequests
	if quotaStatus && containsAny(msg, credentialMarkers) {
		return domain.KindCredentialExhausted
	}
	if containsAny(msg, modelMarkers) {
		return domain.KindModelUnavailable
	}
	return domain.KindNone
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func snippet(body []byte) string {
	const n = 512
	if len(body) > n {
		return string(body[:n])
	}
	return string(body)
}

// asDomainError wraps the last classification as a *domain.Error.
func asDomainError(c Classification, model string, tried []string, attempts int, cause error) *domain.Error {
	if cause == nil && c.Message != "" {
		cause = errors.New(c.Message)
	}
	return &domain.Error{
		Kind:     c.Kind,
		Message:  c.Message,
		Model:    model,
		Status:   c.Status,
		Tried:    append([]string(nil), tried...),
		Attempts: attempts,
		Err:      cause,
	}
}
