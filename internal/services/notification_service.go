package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"ridepass/internal/models"
)

// PushSender delivers one data message to one device token. Satisfied by
// *FCMService.
type PushSender interface {
	SendData(ctx context.Context, token string, data map[string]string) error
}

// InstanceStore is the device-token registry the fan-out path needs.
// Satisfied by *repositories.InstanceRepository.
type InstanceStore interface {
	ListByUser(ctx context.Context, userID string) ([]string, error)
	UnregisterToken(ctx context.Context, token string) error
}

// EnvelopeArchiver keeps raw notification payloads for audit. Satisfied by
// *utils.S3Archiver.
type EnvelopeArchiver interface {
	Put(key string, body []byte) error
}

// NotificationService consumes Pub/Sub-pushed developer notifications, runs
// them through the purchase manager and fans the affected user's refreshed
// subscription list out to their registered devices.
//
// Dedup and Archive are optional; a nil client disables the feature.
type NotificationService struct {
	Manager   *PurchaseManager
	Users     *UserManager
	Instances InstanceStore
	Push      PushSender

	Dedup    *redis.Client
	DedupTTL time.Duration
	Archive  EnvelopeArchiver
}

// ProcessPush handles one push delivery. Malformed and test envelopes are
// logged and swallowed: the delivery is still acked, retrying cannot fix
// them. A returned error means bookkeeping failed and redelivery may help.
func (s *NotificationService) ProcessPush(ctx context.Context, push models.PubSubPush) error {
	if push.Message.Data == "" {
		log.Printf("[rtdn] empty push message id=%q, ignoring", push.Message.MessageID)
		return nil
	}

	raw, err := base64.StdEncoding.DecodeString(push.Message.Data)
	if err != nil {
		log.Printf("[rtdn] undecodable push message id=%q: %v", push.Message.MessageID, err)
		return nil
	}

	if s.isDuplicate(ctx, push.Message.MessageID) {
		log.Printf("[rtdn] duplicate push message id=%q, skipping", push.Message.MessageID)
		return nil
	}

	s.archive(push.Message.MessageID, raw)

	var notif models.DeveloperNotification
	if err := json.Unmarshal(raw, &notif); err != nil {
		log.Printf("[rtdn] unparsable notification id=%q: %v", push.Message.MessageID, err)
		return nil
	}

	rec, err := s.Manager.ProcessDeveloperNotification(ctx, notif.PackageName, notif)
	if err != nil {
		return fmt.Errorf("process developer notification: %w", err)
	}
	if rec == nil || !rec.HasRealOwner() {
		return nil
	}

	return s.notifyUser(ctx, rec.UserID)
}

// notifyUser pushes the user's current subscription list to every registered
// device. Individual send failures never fail the batch; tokens reported as
// unregistered are pruned.
func (s *NotificationService) notifyUser(ctx context.Context, userID string) error {
	if s.Push == nil {
		log.Printf("[rtdn] push fan-out disabled, not notifying user=%q", userID)
		return nil
	}

	list, err := s.Users.SubscriptionStatuses(ctx, userID, "", "")
	if err != nil {
		return fmt.Errorf("load subscriptions for fan-out: %w", err)
	}
	payload, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshal subscription payload: %w", err)
	}

	tokens, err := s.Instances.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: list device tokens: %v", models.ErrInternal, err)
	}

	data := map[string]string{"currentStatus": string(payload)}
	for _, token := range tokens {
		err := s.Push.SendData(ctx, token, data)
		switch {
		case err == nil:
		case errors.Is(err, ErrTokenNotRegistered):
			log.Printf("[rtdn] pruning unregistered device token user=%q", userID)
			if derr := s.Instances.UnregisterToken(ctx, token); derr != nil {
				log.Printf("[rtdn] cannot prune device token: %v", derr)
			}
		default:
			log.Printf("[rtdn] push to device failed user=%q: %v", userID, err)
		}
	}
	return nil
}

// isDuplicate marks the message id in redis; a second delivery within the
// TTL window is reported as already seen. Redis trouble fails open — the
// pipeline is idempotent anyway, dedup only saves work.
func (s *NotificationService) isDuplicate(ctx context.Context, messageID string) bool {
	if s.Dedup == nil || messageID == "" {
		return false
	}
	ttl := s.DedupTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	fresh, err := s.Dedup.SetNX(ctx, "rtdn:msg:"+messageID, 1, ttl).Result()
	if err != nil {
		log.Printf("[rtdn] dedup check failed id=%q: %v", messageID, err)
		return false
	}
	return !fresh
}

func (s *NotificationService) archive(messageID string, raw []byte) {
	if s.Archive == nil {
		return
	}
	if messageID == "" {
		messageID = fmt.Sprintf("at-%d", time.Now().UnixNano())
	}
	if err := s.Archive.Put("rtdn/"+messageID+".json", raw); err != nil {
		log.Printf("[rtdn] archive of raw envelope failed id=%q: %v", messageID, err)
	}
}
