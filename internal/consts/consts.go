package consts

const (
	AccStatusUnlinked       = "unlinked"
	AccStatusAuthenticating = "authenticating"
	AccStatusActive         = "active"
	AccStatusRevoked        = "revoked"
	AccStatusExpired        = "expired"
)

const (
	RuleModeForward = "forward"
	RuleModeCopy    = "copy"
)

const (
	JobStatePending   = "pending"
	JobStateInFlight  = "in-flight"
	JobStateDelivered = "delivered"
	JobStateRetrying  = "retrying"
	JobStateFailed    = "failed"
)

// Modifier kinds form a closed set so that rules are validated when loaded,
// not when a message is already in flight.
const (
	ModCleanCaption = "clean_caption"
	ModCleanHashtag = "clean_hashtag"
	ModCleanMention = "clean_mention"
	ModCleanLink    = "clean_link"
	ModCleanEmoji   = "clean_emoji"
	ModCleanPhone   = "clean_phone"
	ModCleanEmail   = "clean_email"
	ModRename       = "rename"
	ModBlock        = "block"
	ModWhitelist    = "whitelist"
	ModReplace      = "replace"
	ModHeader       = "header"
	ModFooter       = "footer"
	ModButtons      = "buttons"
	ModDelay        = "delay"
	ModHistory      = "history"
)

var ModifierKinds = []string{
	ModCleanCaption, ModCleanHashtag, ModCleanMention, ModCleanLink,
	ModCleanEmoji, ModCleanPhone, ModCleanEmail,
	ModRename, ModBlock, ModWhitelist, ModReplace,
	ModHeader, ModFooter, ModButtons, ModDelay, ModHistory,
}

// Filter toggles. A toggle that is on means "skip the message if it matches".
const (
	FilterText          = "text"
	FilterPhoto         = "photo"
	FilterPhotoOnly     = "photo_only"
	FilterPhotoWithText = "photo_with_text"
	FilterVideo         = "video"
	FilterAudio         = "audio"
	FilterVoice         = "voice"
	FilterVideoNote     = "video_note"
	FilterSticker       = "sticker"
	FilterGif           = "gif"
	FilterDocument      = "document"
	FilterPoll          = "poll"
	FilterEmoji         = "emoji"
	FilterAlbum         = "album"
	FilterForward       = "forward"
	FilterReply         = "reply"
	FilterLink          = "link"
	FilterButton        = "button"
)

var FilterNames = []string{
	FilterText, FilterPhoto, FilterPhotoOnly, FilterPhotoWithText,
	FilterVideo, FilterAudio, FilterVoice, FilterVideoNote,
	FilterSticker, FilterGif, FilterDocument, FilterPoll, FilterEmoji,
	FilterAlbum, FilterForward, FilterReply, FilterLink, FilterButton,
}
