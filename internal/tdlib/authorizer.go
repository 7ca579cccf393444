package tdlib

import (
	"context"
	"log"
	"time"

	"github.com/zelenin/go-tdlib/client"
)

type clientAuthorizer struct {
	TdlibParameters *client.SetTdlibParametersRequest
	PhoneNumber     chan string
	Code            chan string
	State           chan client.AuthorizationState
	Password        chan string
}

func (stateHandler *clientAuthorizer) Handle(tdcl *client.Client, state client.AuthorizationState) error {
	ctx, done := context.WithDeadline(context.Background(), time.Now().Add(60*time.Second))
	defer done()
	stateHandler.State <- state

	switch state.AuthorizationStateConstructor() {
	case client.ConstructorAuthorizationStateWaitTdlibParameters:
		_, err := tdcl.SetTdlibParameters(ctx, stateHandler.TdlibParameters)
		return err

	case client.ConstructorAuthorizationStateWaitPhoneNumber:
		_, err := tdcl.SetAuthenticationPhoneNumber(ctx, &client.SetAuthenticationPhoneNumberRequest{
			PhoneNumber: <-stateHandler.PhoneNumber,
			Settings: &client.PhoneNumberAuthenticationSettings{
				AllowFlashCall:       false,
				IsCurrentPhoneNumber: false,
				AllowSmsRetrieverApi: false,
			},
		})
		return err

	case client.ConstructorAuthorizationStateWaitEmailAddress:
		panic("unsupported authorization state TypeAuthorizationStateWaitEmailAddress")
	case client.ConstructorAuthorizationStateWaitEmailCode:
		panic("unsupported authorization state TypeAuthorizationStateWaitEmailCode")
	case client.ConstructorAuthorizationStateWaitOtherDeviceConfirmation:
		panic("unsupported authorization state TypeAuthorizationStateWaitOtherDeviceConfirmation")

	case client.ConstructorAuthorizationStateWaitCode:
		_, err := tdcl.CheckAuthenticationCode(ctx, &client.CheckAuthenticationCodeRequest{
			Code: <-stateHandler.Code,
		})
		return err

	case client.ConstructorAuthorizationStateWaitRegistration:
		return client.NotSupportedAuthorizationState(state)

	case client.ConstructorAuthorizationStateWaitPassword:
		_, err := tdcl.CheckAuthenticationPassword(ctx, &client.CheckAuthenticationPasswordRequest{
			Password: <-stateHandler.Password,
		})
		return err

	case client.ConstructorAuthorizationStateReady:
		return nil

	case client.ConstructorAuthorizationStateLoggingOut:
		return client.NotSupportedAuthorizationState(state)

	case client.ConstructorAuthorizationStateClosing:
		return nil

	case client.ConstructorAuthorizationStateClosed:
		return nil
	}

	return client.NotSupportedAuthorizationState(state)
}

func (stateHandler *clientAuthorizer) Close() {
	close(stateHandler.PhoneNumber)
	close(stateHandler.Code)
	close(stateHandler.State)
	close(stateHandler.Password)
}

func ClientAuthorizer(tdlibParameters *client.SetTdlibParametersRequest) *clientAuthorizer {
	return &clientAuthorizer{
		TdlibParameters: tdlibParameters,
		PhoneNumber:     make(chan string, 1),
		Code:            make(chan string, 1),
		State:           make(chan client.AuthorizationState, 10),
		Password:        make(chan string, 1),
	}
}

// AuthorizerState exposes the current authorization step to the linker so it
// knows whether a code or a password is being waited for.
var AuthorizerState client.AuthorizationState

// ChanInteractor drives the authorization state machine: the phone is known
// up front, codes and passwords arrive over nextParams as the user provides
// them.
func ChanInteractor(clientAuthorizer *clientAuthorizer, phone string, nextParams chan string) {
	var phoneSet, codeSet, passwordSet bool
	defer func() {
		AuthorizerState = nil
	}()

	for {
		state, ok := <-clientAuthorizer.State
		if !ok {
			log.Printf("Authorization process closed!")

			return
		}
		AuthorizerState = state
		log.Printf("new state! %s", state.AuthorizationStateConstructor())

		switch state.AuthorizationStateConstructor() {
		case client.ConstructorAuthorizationStateWaitPhoneNumber:
			if phoneSet {
				continue
			}
			log.Printf("Setting phone...")
			clientAuthorizer.PhoneNumber <- phone
			phoneSet = true

		case client.ConstructorAuthorizationStateWaitCode:
			if codeSet {
				continue
			}
			log.Printf("Waiting code...")
			param, ok := <-nextParams
			if !ok {
				log.Printf("Invalid param!")
				continue
			}
			log.Printf("Setting code...")
			codeSet = true
			clientAuthorizer.Code <- param

		case client.ConstructorAuthorizationStateWaitPassword:
			if passwordSet {
				continue
			}
			log.Printf("Waiting password...")
			param, ok := <-nextParams
			if !ok {
				log.Printf("Invalid param!")
				continue
			}
			log.Printf("Setting password...")
			passwordSet = true
			clientAuthorizer.Password <- param

		case client.ConstructorAuthorizationStateReady:
			log.Printf("Authorize complete!")

			return
		}
	}
}
