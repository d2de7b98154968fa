package acl

import "errors"

// FallbackConversationID is used for error replies when the offending
// message carries no usable conversation id.
const FallbackConversationID = "invalid-conv"

// Validate parses and validates a raw message body. On success it returns
// (true, envelope). On any decode or invariant failure it returns (false,
// reply) where reply is a ready-to-send FAILURE/ERROR envelope with code
// VALIDATION_ERROR and the underlying problem under details["err"]. The
// fallback conversation id addresses the reply when the body yielded none.
func Validate(raw []byte, fallbackConversationID string) (bool, *Envelope) {
	if fallbackConversationID == "" {
		fallbackConversationID = FallbackConversationID
	}
	env, err := Decode(raw)
	if err == nil {
		return true, env
	}

	details := map[string]any{"err": err.Error()}
	var verr *ValidationError
	if errors.As(err, &verr) {
		for k, v := range verr.Details {
			details[k] = v
		}
		details["err"] = verr.Message
	}
	reply, ferr := NewFailure(fallbackConversationID, ErrValidation, "", details)
	if ferr != nil {
		// Only possible with an unusable fallback id; retreat to the constant.
		reply, _ = NewFailure(FallbackConversationID, ErrValidation, "", details)
	}
	return false, reply
}
