package tdlib

import (
	"context"
	"log"

	"github.com/zelenin/go-tdlib/client"
)

func (t *TdApi) UpdatesCallback(ctx context.Context, update client.Type) {
	switch update.GetType() {
	case client.TypeUpdate:
		typ := update.GetConstructor()
		switch typ {
		case client.ConstructorUpdateAuthorizationState:
			upd := update.(*client.UpdateAuthorizationState)
			state := upd.AuthorizationState.AuthorizationStateConstructor()
			if state == client.ConstructorAuthorizationStateClosed || state == client.ConstructorAuthorizationStateLoggingOut {
				log.Printf("[%d] authorization gone: %s", t.dbData.Id, state)
				if t.OnAuthClosed != nil {
					t.OnAuthClosed()
				}
			}

		case client.ConstructorUpdateChatActionBar:
		case client.ConstructorUpdateSuggestedActions:
		case client.ConstructorUpdateChatTheme:
		case client.ConstructorUpdateChatThemes:
		case client.ConstructorUpdateFavoriteStickers:
		case client.ConstructorUpdateInstalledStickerSets:
		case client.ConstructorUpdateRecentStickers:
		case client.ConstructorUpdateSavedAnimations:
		case client.ConstructorUpdateTrendingStickerSets:
		case client.ConstructorUpdateChatBlockList:
		case client.ConstructorUpdateChatDraftMessage:
		case client.ConstructorUpdateUserStatus:
		case client.ConstructorUpdateChatReadInbox:
		case client.ConstructorUpdateChatReadOutbox:
		case client.ConstructorUpdateUnreadMessageCount:
		case client.ConstructorUpdateChatUnreadReactionCount:
		case client.ConstructorUpdateUnreadChatCount:
		case client.ConstructorUpdateChatIsMarkedAsUnread:
		case client.ConstructorUpdateChatUnreadMentionCount:
		case client.ConstructorUpdateChatReplyMarkup:
		case client.ConstructorUpdateChatPermissions:
		case client.ConstructorUpdateChatNotificationSettings:
		case client.ConstructorUpdateMessageMentionRead:
		case client.ConstructorUpdateMessageIsPinned:
		case client.ConstructorUpdateChatHasScheduledMessages:
		case client.ConstructorUpdateHavePendingNotifications:
		case client.ConstructorUpdateCall:
		case client.ConstructorUpdateMessageContentOpened:
		case client.ConstructorUpdateUserPrivacySettingRules:
		case client.ConstructorUpdateGroupCall:
		case client.ConstructorUpdateChatVideoChat:
		case client.ConstructorUpdateChatMessageSender:
		case client.ConstructorUpdateMessageUnreadReactions:
		case client.ConstructorUpdateAnimatedEmojiMessageClicked:
		case client.ConstructorUpdateScopeNotificationSettings:
		case client.ConstructorUpdateStickerSet:
		case client.ConstructorUpdateSavedNotificationSounds:
		case client.ConstructorUpdateChatOnlineMemberCount:
		case client.ConstructorUpdateChatIsTranslatable:
		case client.ConstructorUpdateAutosaveSettings:
		case client.ConstructorUpdateForumTopicInfo:
		case client.ConstructorUpdateChatAccentColors:
		case client.ConstructorUpdateAccentColors:
		case client.ConstructorUpdateProfileAccentColors:
		case client.ConstructorUpdateChatBackground:
		case client.ConstructorUpdateChatActiveStories:
		case client.ConstructorUpdateStoryListChatCount:
		case client.ConstructorUpdateChatViewAsTopics:
		case client.ConstructorUpdateQuickReplyShortcuts:
		case client.ConstructorUpdateAvailableMessageEffects:
		case client.ConstructorUpdateDefaultReactionType:
		case client.ConstructorUpdateSavedMessagesTopic:
		case client.ConstructorUpdateSpeechRecognitionTrial:
		case client.ConstructorUpdateAnimationSearchParameters:
		case client.ConstructorUpdateAttachmentMenuBots:
		case client.ConstructorUpdateDefaultBackground:
		case client.ConstructorUpdateFileDownloads:
		case client.ConstructorUpdateFileDownload:
		case client.ConstructorUpdateDiceEmojis:
		case client.ConstructorUpdateActiveEmojiReactions:
		case client.ConstructorUpdateDefaultPaidReactionType:
		case client.ConstructorUpdateOwnedStarCount:
		case client.ConstructorUpdateReactionNotificationSettings:
		case client.ConstructorUpdateStoryStealthMode:
		case client.ConstructorUpdateChatFolders:
		case client.ConstructorUpdateChatPosition:
		case client.ConstructorUpdateChatAddedToList:
		case client.ConstructorUpdateChatRemovedFromList:
		case client.ConstructorUpdateChatLastMessage:
		case client.ConstructorUpdateChatAction:
		case client.ConstructorUpdateDeleteMessages:
		case client.ConstructorUpdateMessageInteractionInfo:
		case client.ConstructorUpdateChatTitle:
		case client.ConstructorUpdateChatHasProtectedContent:
		case client.ConstructorUpdateConnectionState:
		case client.ConstructorUpdateOption:
		case client.ConstructorUpdateFile:
		case client.ConstructorUpdateChatMessageAutoDeleteTime:
		case client.ConstructorUpdateChatAvailableReactions:
		case client.ConstructorUpdateMessageEdited:
		case client.ConstructorUpdateMessageContent:

		case client.ConstructorUpdateSupergroup:
		case client.ConstructorUpdateSupergroupFullInfo:
		case client.ConstructorUpdateBasicGroup:
		case client.ConstructorUpdateBasicGroupFullInfo:
		case client.ConstructorUpdateUser:
		case client.ConstructorUpdateUserFullInfo:
		case client.ConstructorUpdateChatPhoto:

		case client.ConstructorUpdateMessageSendSucceeded:
			upd := update.(*client.UpdateMessageSendSucceeded)
			t.sentMessages.LoadAndDelete(upd.OldMessageId)
		case client.ConstructorUpdateMessageSendFailed:
			upd := update.(*client.UpdateMessageSendFailed)
			if dstChatId, ok := t.sentMessages.LoadAndDelete(upd.OldMessageId); ok {
				log.Printf("[%d] async send failure in chat %d: %s", t.dbData.Id, dstChatId, upd.Error.Message)
			} else {
				log.Printf("failed to send message %d: %s", upd.OldMessageId, upd.Error.Message)
			}

		case client.ConstructorUpdateNewChat:
			//chat info is empty here, cached via client.TypeChat below

		case client.ConstructorUpdateNewMessage:
			upd := update.(*client.UpdateNewMessage)
			if upd.Message.IsOutgoing {
				//own sends come back as new messages too
				break
			}
			if t.OnNewMessage != nil {
				t.OnNewMessage(upd.Message, t.GetChatUsername(ctx, upd.Message.ChatId))
			}

		default:
			//unknown updates are not interesting for forwarding
		}

	case client.TypeOk:
	case client.TypeError:
	case client.TypeUser:
	case client.TypeChat:
		upd := update.(*client.Chat)
		t.cacheChat(upd)
	case client.TypeSupergroup:
	case client.TypeChats:
	case client.TypeFile:
	case client.TypeOptionValue:
	case client.TypeChatMember:
	case client.TypeMessage:
	case client.TypeMessages:
	case client.TypeAuthorizationState:

	default:
		log.Printf("WAAAT? update who??? %s, %v", update.GetType(), update)
	}
}
