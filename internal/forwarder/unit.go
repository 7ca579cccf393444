package forwarder

import (
	"time"

	"github.com/zelenin/go-tdlib/client"
)

// Kind is the content kind of a normalized unit.
type Kind string

const (
	KindText      Kind = "text"
	KindPhoto     Kind = "photo"
	KindVideo     Kind = "video"
	KindAudio     Kind = "audio"
	KindVoice     Kind = "voice"
	KindVideoNote Kind = "video_note"
	KindSticker   Kind = "sticker"
	KindGif       Kind = "gif"
	KindDocument  Kind = "document"
	KindPoll      Kind = "poll"
	KindEmoji     Kind = "emoji"
	KindOther     Kind = "other"
)

// Button is an outgoing inline link button.
type Button struct {
	Text string
	Url  string
}

// Unit is one normalized inbound message, or one merged album, as seen by
// the pipeline. It carries everything filters and modifiers operate on, the
// platform message is not consulted again after construction.
type Unit struct {
	AccountId    int64
	ChatId       int64
	ChatUsername string
	MessageIds   []int64
	AlbumId      int64

	Kind     Kind
	Text     string
	FileName string
	FileId   int32

	HasMedia       bool
	HasCaption     bool
	HasLink        bool
	HasButtons     bool
	HasCustomEmoji bool
	IsForward      bool
	IsReply        bool

	// Set by modifiers for the scheduler and the platform edge.
	Buttons [][]Button
	Delay   time.Duration
	Renamed bool

	ReceivedAt time.Time
}

// NewUnit normalizes one tdlib message. The album id is carried over so the
// aggregator can buffer related parts before the unit goes further.
func NewUnit(accountId int64, msg *client.Message, chatUsername string) *Unit {
	u := &Unit{
		AccountId:    accountId,
		ChatId:       msg.ChatId,
		ChatUsername: chatUsername,
		MessageIds:   []int64{msg.Id},
		AlbumId:      int64(msg.MediaAlbumId),
		Kind:         KindOther,
		IsForward:    msg.ForwardInfo != nil,
		IsReply:      msg.ReplyTo != nil,
		ReceivedAt:   time.Now(),
	}

	var formatted *client.FormattedText
	switch msg.Content.MessageContentConstructor() {
	case client.ConstructorMessageText:
		content := msg.Content.(*client.MessageText)
		u.Kind = KindText
		formatted = content.Text
	case client.ConstructorMessagePhoto:
		content := msg.Content.(*client.MessagePhoto)
		u.Kind = KindPhoto
		u.HasMedia = true
		formatted = content.Caption
	case client.ConstructorMessageVideo:
		content := msg.Content.(*client.MessageVideo)
		u.Kind = KindVideo
		u.HasMedia = true
		u.FileName = content.Video.FileName
		u.FileId = content.Video.Video.Id
		formatted = content.Caption
	case client.ConstructorMessageAudio:
		content := msg.Content.(*client.MessageAudio)
		u.Kind = KindAudio
		u.HasMedia = true
		u.FileName = content.Audio.FileName
		u.FileId = content.Audio.Audio.Id
		formatted = content.Caption
	case client.ConstructorMessageVoiceNote:
		content := msg.Content.(*client.MessageVoiceNote)
		u.Kind = KindVoice
		u.HasMedia = true
		formatted = content.Caption
	case client.ConstructorMessageVideoNote:
		u.Kind = KindVideoNote
		u.HasMedia = true
	case client.ConstructorMessageSticker:
		u.Kind = KindSticker
		u.HasMedia = true
	case client.ConstructorMessageAnimation:
		content := msg.Content.(*client.MessageAnimation)
		u.Kind = KindGif
		u.HasMedia = true
		u.FileName = content.Animation.FileName
		u.FileId = content.Animation.Animation.Id
		formatted = content.Caption
	case client.ConstructorMessageDocument:
		content := msg.Content.(*client.MessageDocument)
		u.Kind = KindDocument
		u.HasMedia = true
		u.FileName = content.Document.FileName
		u.FileId = content.Document.Document.Id
		formatted = content.Caption
	case client.ConstructorMessagePoll:
		u.Kind = KindPoll
	case client.ConstructorMessageAnimatedEmoji:
		u.Kind = KindEmoji
	}

	if formatted != nil {
		u.Text = formatted.Text
		for _, ent := range formatted.Entities {
			switch ent.Type.TextEntityTypeConstructor() {
			case client.ConstructorTextEntityTypeUrl, client.ConstructorTextEntityTypeTextUrl:
				u.HasLink = true
			case client.ConstructorTextEntityTypeCustomEmoji:
				u.HasCustomEmoji = true
			}
		}
	}
	u.HasCaption = u.Text != ""
	if !u.HasLink && linkPattern.MatchString(u.Text) {
		u.HasLink = true
	}

	if msg.ReplyMarkup != nil &&
		msg.ReplyMarkup.ReplyMarkupConstructor() == client.ConstructorReplyMarkupInlineKeyboard {
		u.HasButtons = true
	}

	return u
}

// MergeAlbum folds buffered album parts into one logical unit, parts in
// arrival order. The caption is the first non-empty one, which is how the
// platform renders albums.
func MergeAlbum(parts []*Unit) *Unit {
	merged := *parts[0]
	merged.MessageIds = make([]int64, 0, len(parts))
	for _, p := range parts {
		merged.MessageIds = append(merged.MessageIds, p.MessageIds...)
		if merged.Text == "" && p.Text != "" {
			merged.Text = p.Text
			merged.HasCaption = true
		}
		merged.HasLink = merged.HasLink || p.HasLink
		merged.HasButtons = merged.HasButtons || p.HasButtons
		merged.HasCustomEmoji = merged.HasCustomEmoji || p.HasCustomEmoji
	}

	return &merged
}

// IsAlbum reports whether the unit is (part of) a media group.
func (u *Unit) IsAlbum() bool {
	return u.AlbumId != 0 || len(u.MessageIds) > 1
}
