package ingress

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"pushtalk/device/internal/types"
)

var (
	// ErrValidation marks a malformed payload. Dropped, never acted on.
	ErrValidation = errors.New("invalid push payload")
	// ErrStale marks a payload older than the freshness window. The
	// triggering session is likely already over; joining would connect
	// to a vacated channel.
	ErrStale = errors.New("stale push payload")
)

// MessageType tags the data-only push messages this device acts on.
const MessageType = "walkie_talkie"

// Payload field keys.
const (
	keyType    = "type"
	keyChannel = "channel_id"
	keyToken   = "token"
	keyUID     = "uid"
	keyName    = "name"
	keyPhoto   = "photo"
	keySentAt  = "sent_at"
)

// Validator turns raw push payloads into typed join requests. It touches
// neither persistence nor the channel provider; rejected payloads are
// logged and counted, nothing else.
type Validator struct {
	freshness time.Duration
}

func NewValidator(freshness time.Duration) *Validator {
	return &Validator{freshness: freshness}
}

// Validate checks required fields and freshness, in that order.
// receivedAt is when the push arrived on-device, not when it is processed.
func (v *Validator) Validate(payload map[string]string, receivedAt time.Time) (*types.JoinRequest, error) {
	if payload[keyType] != MessageType {
		metricDroppedInvalid.Inc()
		return nil, fmt.Errorf("%w: type %q", ErrValidation, payload[keyType])
	}
	for _, key := range []string{keyChannel, keyToken, keyUID} {
		if payload[key] == "" {
			metricDroppedInvalid.Inc()
			return nil, fmt.Errorf("%w: missing %s", ErrValidation, key)
		}
	}

	sentUnix, err := strconv.ParseInt(payload[keySentAt], 10, 64)
	if err != nil {
		metricDroppedInvalid.Inc()
		return nil, fmt.Errorf("%w: bad sent_at %q", ErrValidation, payload[keySentAt])
	}
	sentAt := time.Unix(sentUnix, 0)
	if age := receivedAt.Sub(sentAt); age > v.freshness {
		metricDroppedStale.Inc()
		log.Info().
			Str("channel_id", payload[keyChannel]).
			Dur("age", age).
			Msg("dropping stale push")
		return nil, fmt.Errorf("%w: age %s", ErrStale, age)
	}

	metricAccepted.Inc()
	return &types.JoinRequest{
		ChannelID:   payload[keyChannel],
		AccessToken: payload[keyToken],
		LocalUID:    payload[keyUID],
		RemoteName:  payload[keyName],
		RemotePhoto: payload[keyPhoto],
		SentAt:      sentAt,
	}, nil
}
