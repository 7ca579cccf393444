package tdlib

import (
	"context"
	"log/slog"

	"github.com/zelenin/go-tdlib/client"

	"github.com/TeleOle/auto-forward/internal/config"
	"github.com/TeleOle/auto-forward/internal/consts"
	"github.com/TeleOle/auto-forward/internal/db"
)

// AccountLinker performs the interactive login that binds a phone number to
// a user. It runs a throwaway tdlib instance just to complete authorization
// and persist the session files; the account store picks the account up on
// its next reconcile once the status turns active.
type AccountLinker struct {
	log               *slog.Logger
	cfg               *config.Config
	as                *db.AccountsStorage
	CurrentLinkingAcc *db.DbAccountData
	AuthParams        chan string
}

func NewAccountLinker(log *slog.Logger, cfg *config.Config, astorage *db.AccountsStorage) *AccountLinker {
	return &AccountLinker{log: log, cfg: cfg, as: astorage}
}

func (c *AccountLinker) LinkAccount(ctx context.Context, userId int64, phone string) {
	mongoAcc, err := c.as.GetSavedAccount(ctx, phone)
	if err != nil {
		c.log.Error("unable to check if account exists", "phone", phone, "error", err)
		return
	}
	if mongoAcc == nil {
		c.log.Info("starting new account linking", "phone", phone)
		c.CurrentLinkingAcc = &db.DbAccountData{
			UserId:  userId,
			Phone:   phone,
			DataDir: ".tdlib" + phone,
			Status:  consts.AccStatusAuthenticating,
		}
		err := c.as.SaveAccount(ctx, c.CurrentLinkingAcc)
		if err != nil {
			c.log.Error("save new account", "phone", phone, "error", err)
			c.CurrentLinkingAcc.Status = consts.AccStatusUnlinked

			return
		}
	} else {
		c.CurrentLinkingAcc = mongoAcc
		if c.CurrentLinkingAcc.Status == consts.AccStatusActive {
			c.log.Warn("not linking existing account", "phone", phone)
			c.CurrentLinkingAcc = nil

			return
		}
		c.log.Info("continuing account linking", "phone", phone, "state", c.CurrentLinkingAcc.Status)
	}

	c.AuthParams = make(chan string)

	go func() {
		authorizer := ClientAuthorizer(createTdlibParameters(c.cfg, c.CurrentLinkingAcc.DataDir))
		var tdlibClientLocal *client.Client
		var meLocal *client.User

		c.log.Info("push tdlib params", "phone", phone)
		_, _ = client.SetLogVerbosityLevel(&client.SetLogVerbosityLevelRequest{
			NewVerbosityLevel: 2,
		})

		go ChanInteractor(authorizer, phone, c.AuthParams)

		c.log.Info("create authorizing client instance", "phone", phone)

		var err error
		tdlibClientLocal, err = client.NewClient(authorizer)
		if err != nil {
			c.log.Error("NewClient", "phone", phone, "error", err)
			c.CurrentLinkingAcc.Status = consts.AccStatusUnlinked
			return
		}
		c.log.Info("get version", "phone", phone)

		optionValue, err := tdlibClientLocal.GetOption(&client.GetOptionRequest{
			Name: "version",
		})
		if err != nil {
			c.log.Error("GetOption", "phone", phone, "error", err)
			c.CurrentLinkingAcc.Status = consts.AccStatusUnlinked
			return
		}

		c.log.Info("TDLib", "phone", phone, "version", optionValue.(*client.OptionValueString).Value)

		meLocal, err = tdlibClientLocal.GetMe(ctx)
		if err != nil {
			c.log.Error("GetMe", "phone", phone, "error", err)
			c.CurrentLinkingAcc.Status = consts.AccStatusUnlinked
			return
		}

		c.log.Info("linked", "phone", phone, "me", GetUserFullname(meLocal))

		err = c.as.EnsureUser(ctx, &db.DbUserData{
			Id:        userId,
			Username:  GetUsername(meLocal.Usernames),
			FirstName: meLocal.FirstName,
		})
		if err != nil {
			c.log.Error("ensure user", "phone", phone, "error", err)
		}

		c.log.Info("closing authorizing instance", "phone", phone)
		_, err = tdlibClientLocal.Close(ctx)
		if err != nil {
			c.log.Error("close authorizing instance", "phone", phone, "error", err)
			c.CurrentLinkingAcc.Status = consts.AccStatusUnlinked
			return
		}

		c.CurrentLinkingAcc.Id = meLocal.Id
		c.CurrentLinkingAcc.Status = consts.AccStatusActive

		err = c.as.SaveAccount(ctx, c.CurrentLinkingAcc)
		if err != nil {
			c.log.Error("save linked account", "phone", phone, "error", err)
			c.CurrentLinkingAcc.Status = consts.AccStatusUnlinked
			return
		}

		c.CurrentLinkingAcc = nil
	}()
}
