package forwarder

import (
	"github.com/TeleOle/auto-forward/internal/consts"
)

// Flags is the classification of a unit: independent booleans packed into a
// bitmask. A unit can be a photo, part of an album and carry a link at the
// same time.
type Flags uint32

const (
	FlagText Flags = 1 << iota
	FlagPhoto
	FlagPhotoOnly
	FlagPhotoWithText
	FlagVideo
	FlagAudio
	FlagVoice
	FlagVideoNote
	FlagSticker
	FlagGif
	FlagDocument
	FlagPoll
	FlagEmoji
	FlagAlbum
	FlagForward
	FlagReply
	FlagLink
	FlagButton
)

var filterFlags = map[string]Flags{
	consts.FilterText:          FlagText,
	consts.FilterPhoto:         FlagPhoto,
	consts.FilterPhotoOnly:     FlagPhotoOnly,
	consts.FilterPhotoWithText: FlagPhotoWithText,
	consts.FilterVideo:         FlagVideo,
	consts.FilterAudio:         FlagAudio,
	consts.FilterVoice:         FlagVoice,
	consts.FilterVideoNote:     FlagVideoNote,
	consts.FilterSticker:       FlagSticker,
	consts.FilterGif:           FlagGif,
	consts.FilterDocument:      FlagDocument,
	consts.FilterPoll:          FlagPoll,
	consts.FilterEmoji:         FlagEmoji,
	consts.FilterAlbum:         FlagAlbum,
	consts.FilterForward:       FlagForward,
	consts.FilterReply:         FlagReply,
	consts.FilterLink:          FlagLink,
	consts.FilterButton:        FlagButton,
}

var kindFlags = map[Kind]Flags{
	KindText:      FlagText,
	KindPhoto:     FlagPhoto,
	KindVideo:     FlagVideo,
	KindAudio:     FlagAudio,
	KindVoice:     FlagVoice,
	KindVideoNote: FlagVideoNote,
	KindSticker:   FlagSticker,
	KindGif:       FlagGif,
	KindDocument:  FlagDocument,
	KindPoll:      FlagPoll,
	KindEmoji:     FlagEmoji,
}

// Classify derives the flags of a unit. Pure and deterministic.
func Classify(u *Unit) Flags {
	var f Flags
	f |= kindFlags[u.Kind]
	if u.Kind == KindPhoto {
		if u.HasCaption {
			f |= FlagPhotoWithText
		} else {
			f |= FlagPhotoOnly
		}
	}
	if u.IsAlbum() {
		f |= FlagAlbum
	}
	if u.IsForward {
		f |= FlagForward
	}
	if u.IsReply {
		f |= FlagReply
	}
	if u.HasLink {
		f |= FlagLink
	}
	if u.HasButtons {
		f |= FlagButton
	}
	if u.HasCustomEmoji {
		f |= FlagEmoji
	}

	return f
}

// FilterMask converts a rule's filter toggles into a flag mask. Unknown
// names were rejected at rule load already.
func FilterMask(filters map[string]bool) Flags {
	var mask Flags
	for name, on := range filters {
		if on {
			mask |= filterFlags[name]
		}
	}
	return mask
}

// ShouldSkip reports whether the unit must be dropped: true iff anything in
// its classification is among the enabled filters.
func ShouldSkip(flags Flags, enabled Flags) bool {
	return flags&enabled != 0
}
