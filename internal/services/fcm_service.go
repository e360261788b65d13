package services

import (
	"context"
	"errors"
	"fmt"

	"firebase.google.com/go/messaging"
)

// ErrTokenNotRegistered marks a device token the push transport reports as
// permanently gone. Senders should drop the token from the registration set.
var ErrTokenNotRegistered = errors.New("services: device token is no longer registered")

// FCMService sends data messages to individual device tokens.
type FCMService struct {
	Client *messaging.Client
}

func NewFCMService(client *messaging.Client) *FCMService {
	return &FCMService{Client: client}
}

func (s *FCMService) SendData(ctx context.Context, token string, data map[string]string) error {
	message := &messaging.Message{
		Token: token,
		Data:  data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}

	_, err := s.Client.Send(ctx, message)
	if err != nil {
		if messaging.IsRegistrationTokenNotRegistered(err) {
			return fmt.Errorf("%w: %v", ErrTokenNotRegistered, err)
		}
		return err
	}
	return nil
}
