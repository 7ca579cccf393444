package tdlib

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/TeleOle/auto-forward/internal/config"
	"github.com/TeleOle/auto-forward/internal/db"
	"github.com/TeleOle/auto-forward/internal/forwarder"
	"github.com/zelenin/go-tdlib/client"
)

// TdApi wraps one account's live tdlib client: the inbound update stream and
// the outbound send/copy/history calls the pipeline needs.
type TdApi struct {
	m           sync.RWMutex
	cfg         *config.Config
	dbData      *db.DbAccountData
	localChats  map[int64]*client.Chat
	resolved    map[string]int64
	tdlibClient *client.Client

	sentMessages sync.Map

	// OnNewMessage receives every inbound message in platform order.
	// OnAuthClosed fires when the session's authorization is invalidated.
	OnNewMessage func(msg *client.Message, chatUsername string)
	OnAuthClosed func()
}

func NewTdApi(cfg *config.Config, dbData *db.DbAccountData) *TdApi {
	return &TdApi{
		cfg:        cfg,
		dbData:     dbData,
		localChats: make(map[int64]*client.Chat),
		resolved:   make(map[string]int64),
	}
}

func (t *TdApi) RunTdlib() (*client.User, error) {
	tdlibParameters := createTdlibParameters(t.cfg, t.dbData.DataDir)
	authorizer := ClientAuthorizer(tdlibParameters)
	authParams := make(chan string)
	go ChanInteractor(authorizer, t.dbData.Phone, authParams)

	_, _ = client.SetLogVerbosityLevel(&client.SetLogVerbosityLevelRequest{
		NewVerbosityLevel: 1,
	})

	tdlibClient, err := client.NewClient(authorizer, client.WithResultHandler(client.NewCallbackResultHandler(t.UpdatesCallback)))
	if err != nil {
		return nil, fmt.Errorf("NewClient: %w", err)
	}

	me, err := tdlibClient.GetMe(context.Background())
	if err != nil {
		return nil, fmt.Errorf("GetMe: %w", err)
	}
	log.Printf("Me: %s %s [%s]", me.FirstName, me.LastName, GetUsername(me.Usernames))

	t.tdlibClient = tdlibClient

	return me, nil
}

func (t *TdApi) GetChat(ctx context.Context, chatId int64, force bool) (*client.Chat, error) {
	t.m.RLock()
	fullChat, ok := t.localChats[chatId]
	t.m.RUnlock()
	if !force && ok {

		return fullChat, nil
	}
	req := &client.GetChatRequest{ChatId: chatId}
	fullChat, err := t.tdlibClient.GetChat(ctx, req)
	if err == nil {
		t.cacheChat(fullChat)
	}

	return fullChat, err
}

func (t *TdApi) cacheChat(chat *client.Chat) {
	t.m.Lock()
	t.localChats[chat.Id] = chat
	t.m.Unlock()
}

func (t *TdApi) GetUser(ctx context.Context, userId int64) (*client.User, error) {
	userReq := &client.GetUserRequest{UserId: userId}

	return t.tdlibClient.GetUser(ctx, userReq)
}

func (t *TdApi) GetSuperGroup(ctx context.Context, sgId int64) (*client.Supergroup, error) {
	sgReq := &client.GetSupergroupRequest{SupergroupId: sgId}

	return t.tdlibClient.GetSupergroup(ctx, sgReq)
}

func (t *TdApi) GetChatUsername(ctx context.Context, chatId int64) string {
	chat, err := t.GetChat(ctx, chatId, false)
	if err != nil {
		return ""
	}
	switch chat.Type.ChatTypeConstructor() {
	case client.ConstructorChatTypeSupergroup:
		typ := chat.Type.(*client.ChatTypeSupergroup)
		sg, err := t.GetSuperGroup(ctx, typ.SupergroupId)
		if err != nil {
			log.Printf("GetChatUsername error: %s", err.Error())

			return ""
		}

		return GetUsername(sg.Usernames)
	case client.ConstructorChatTypePrivate:
		typ := chat.Type.(*client.ChatTypePrivate)
		user, err := t.GetUser(ctx, typ.UserId)
		if err != nil {
			log.Printf("GetChatUsername error: %s", err.Error())

			return ""
		}

		return GetUsername(user.Usernames)
	}

	return ""
}

// ResolveChat maps a rule's chat ref (@username or numeric id, with or
// without the -100 supergroup prefix) to a reachable chat id. Resolutions
// are cached for the session.
func (t *TdApi) ResolveChat(ctx context.Context, ref string) (int64, error) {
	t.m.RLock()
	id, ok := t.resolved[ref]
	t.m.RUnlock()
	if ok {

		return id, nil
	}

	var chat *client.Chat
	var err error
	if strings.HasPrefix(ref, "@") {
		req := &client.SearchPublicChatRequest{Username: strings.TrimPrefix(ref, "@")}
		chat, err = t.tdlibClient.SearchPublicChat(ctx, req)
	} else {
		var chatId int64
		chatId, err = strconv.ParseInt(ref, 10, 64)
		if err != nil {

			return 0, fmt.Errorf("400 bad chat ref %s", ref)
		}
		chat, err = t.GetChat(ctx, chatId, false)
		if err != nil && chatId > 0 {
			supergroupId, perr := strconv.ParseInt("-100"+ref, 10, 64)
			if perr == nil {
				chat, err = t.GetChat(ctx, supergroupId, false)
			}
		}
	}
	if err != nil {

		return 0, fmt.Errorf("resolve chat %s: %w", ref, err)
	}

	t.m.Lock()
	t.resolved[ref] = chat.Id
	t.m.Unlock()

	return chat.Id, nil
}

// ForwardTo relays messages keeping the original attribution.
func (t *TdApi) ForwardTo(ctx context.Context, dstChatId int64, srcChatId int64, messageIds []int64) error {
	req := &client.ForwardMessagesRequest{
		ChatId:     dstChatId,
		FromChatId: srcChatId,
		MessageIds: messageIds,
	}
	sent, err := t.tdlibClient.ForwardMessages(ctx, req)
	if err != nil {

		return fmt.Errorf("forward to %d: %w", dstChatId, err)
	}
	t.rememberSent(sent.Messages)

	return nil
}

// CopyTo re-sends the unit as a new message attributed to this account, with
// the transformed text and buttons applied. Album parts are copied in order
// and only the first part carries the caption.
func (t *TdApi) CopyTo(ctx context.Context, dstChatId int64, u *forwarder.Unit) error {
	markup := buildMarkup(u.Buttons)

	if !u.HasMedia {
		content := &client.InputMessageText{Text: &client.FormattedText{Text: u.Text}}
		req := &client.SendMessageRequest{ChatId: dstChatId, InputMessageContent: content, ReplyMarkup: markup}
		sent, err := t.tdlibClient.SendMessage(ctx, req)
		if err != nil {

			return fmt.Errorf("copy text to %d: %w", dstChatId, err)
		}
		t.rememberSent([]*client.Message{sent})

		return nil
	}

	if u.Renamed && u.Kind == forwarder.KindDocument && u.FileId != 0 && len(u.MessageIds) == 1 {
		return t.copyRenamedDocument(ctx, dstChatId, u, markup)
	}

	for i, messageId := range u.MessageIds {
		caption := &client.FormattedText{}
		if i == 0 {
			caption.Text = u.Text
		}
		content := &client.InputMessageForwarded{
			FromChatId: u.ChatId,
			MessageId:  messageId,
			CopyOptions: &client.MessageCopyOptions{
				SendCopy:       true,
				ReplaceCaption: true,
				NewCaption:     caption,
			},
		}
		req := &client.SendMessageRequest{ChatId: dstChatId, InputMessageContent: content}
		if i == 0 {
			req.ReplyMarkup = markup
		}
		sent, err := t.tdlibClient.SendMessage(ctx, req)
		if err != nil {

			return fmt.Errorf("copy %d to %d: %w", messageId, dstChatId, err)
		}
		t.rememberSent([]*client.Message{sent})
	}

	return nil
}

// copyRenamedDocument re-sends a document under the rewritten file name.
// The platform derives the name from the uploaded file, so the original is
// downloaded and staged under the new name before sending.
func (t *TdApi) copyRenamedDocument(ctx context.Context, dstChatId int64, u *forwarder.Unit, markup client.ReplyMarkup) error {
	file, err := t.tdlibClient.DownloadFile(ctx, &client.DownloadFileRequest{
		FileId:      u.FileId,
		Priority:    1,
		Synchronous: true,
	})
	if err != nil {

		return fmt.Errorf("download file %d for rename: %w", u.FileId, err)
	}
	staged, err := stageFile(file.Local.Path, u.FileName)
	if err != nil {

		return fmt.Errorf("stage renamed file: %w", err)
	}

	content := &client.InputMessageDocument{
		Document: &client.InputFileLocal{Path: staged},
		Caption:  &client.FormattedText{Text: u.Text},
	}
	req := &client.SendMessageRequest{ChatId: dstChatId, InputMessageContent: content, ReplyMarkup: markup}
	sent, err := t.tdlibClient.SendMessage(ctx, req)
	if err != nil {

		return fmt.Errorf("send renamed document to %d: %w", dstChatId, err)
	}
	t.rememberSent([]*client.Message{sent})

	return nil
}

// stageFile copies src into a fresh temp dir under name, which becomes the
// file name the platform shows. The staged copy stays on disk: the upload
// runs asynchronously after SendMessage returns.
func stageFile(srcPath string, name string) (string, error) {
	dir, err := os.MkdirTemp("", "autoforward")
	if err != nil {
		return "", err
	}
	src, err := os.Open(srcPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dstPath := filepath.Join(dir, filepath.Base(name))
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}

	return dstPath, nil
}

func buildMarkup(buttons [][]forwarder.Button) client.ReplyMarkup {
	if len(buttons) == 0 {

		return nil
	}
	rows := make([][]*client.InlineKeyboardButton, 0, len(buttons))
	for _, row := range buttons {
		cells := make([]*client.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			cells = append(cells, &client.InlineKeyboardButton{
				Text: b.Text,
				Type: &client.InlineKeyboardButtonTypeUrl{Url: b.Url},
			})
		}
		rows = append(rows, cells)
	}

	return &client.ReplyMarkupInlineKeyboard{Rows: rows}
}

func (t *TdApi) rememberSent(messages []*client.Message) {
	for _, m := range messages {
		if m == nil {
			continue
		}
		t.sentMessages.Store(m.Id, m.ChatId)
	}
}

// LoadChatHistory returns one page of past messages, newest first, starting
// strictly before fromMessageId (zero means the latest message).
func (t *TdApi) LoadChatHistory(ctx context.Context, chatId int64, fromMessageId int64) ([]*client.Message, error) {
	req := &client.GetChatHistoryRequest{
		ChatId:        chatId,
		FromMessageId: fromMessageId,
		Offset:        0,
		Limit:         t.cfg.HistoryPageSize,
		OnlyLocal:     false,
	}
	messages, err := t.tdlibClient.GetChatHistory(ctx, req)
	if err != nil {

		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	return messages.Messages, nil
}

func (t *TdApi) Close() {
	t.tdlibClient.Close(context.Background())
}

func createTdlibParameters(cfg *config.Config, dataDir string) *client.SetTdlibParametersRequest {

	return &client.SetTdlibParametersRequest{
		UseTestDc:           false,
		DatabaseDirectory:   filepath.Join(cfg.TDataDir, dataDir, "db"),
		FilesDirectory:      filepath.Join(cfg.TDataDir, dataDir, "files"),
		UseFileDatabase:     true,
		UseChatInfoDatabase: true,
		UseMessageDatabase:  true,
		UseSecretChats:      false,
		ApiId:               cfg.ApiId,
		ApiHash:             cfg.ApiHash,
		SystemLanguageCode:  "en",
		DeviceModel:         "Linux",
		SystemVersion:       "1.0.0",
		ApplicationVersion:  "1.0.0",
	}
}
