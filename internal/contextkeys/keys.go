package contextkeys

import "context"

type messageTypeKey struct{}
type filesInfoKey struct{}
type chatIDKey struct{}
type userIDKey struct{}
type callbackDataKey struct{}

type MessageType string

const (
	MessageTypeText        MessageType = "text"
	MessageTypePhoto       MessageType = "photo"
	MessageTypeDocument    MessageType = "document"
	MessageTypeUnknown     MessageType = "unknown"
	MessageTypeCommand     MessageType = "command"
	MessageTypeClickButton MessageType = "click_button"
)

type FileInfo struct {
	FileType MessageType `json:"file_type"`
	FileID   string      `json:"file_id"`
	FileSize int64       `json:"file_size,omitempty"`
	MimeType string      `json:"mime_type,omitempty"`
	FileName string      `json:"file_name,omitempty"`
	Width    int         `json:"width,omitempty"`
	Height   int         `json:"height,omitempty"`
	// IsImage is false for documents that are not a supported image.
	IsImage bool `json:"is_image"`
}

type FilesInfo struct {
	TotalFiles int        `json:"total_files"`
	Files      []FileInfo `json:"files"`
	HasFiles   bool       `json:"has_files"`
}

func WithMessageType(ctx context.Context, msgType MessageType) context.Context {
	return context.WithValue(ctx, messageTypeKey{}, msgType)
}

func GetMessageType(ctx context.Context) (MessageType, bool) {
	v, ok := ctx.Value(messageTypeKey{}).(MessageType)
	if !ok {
		return MessageTypeUnknown, false
	}
	return v, true
}

func WithFilesInfo(ctx context.Context, info *FilesInfo) context.Context {
	return context.WithValue(ctx, filesInfoKey{}, info)
}

func GetFilesInfo(ctx context.Context) (*FilesInfo, bool) {
	v, ok := ctx.Value(filesInfoKey{}).(*FilesInfo)
	return v, ok
}

func HasFiles(ctx context.Context) bool {
	info, ok := GetFilesInfo(ctx)
	return ok && info != nil && info.HasFiles
}

func GetFileInfo(ctx context.Context, index int) (FileInfo, bool) {
	info, ok := GetFilesInfo(ctx)
	if !ok || info == nil || index < 0 || index >= len(info.Files) {
		return FileInfo{}, false
	}
	return info.Files[index], true
}

// WithChat records the chat and user the update belongs to.
func WithChat(ctx context.Context, chatID, userID int64) context.Context {
	ctx = context.WithValue(ctx, chatIDKey{}, chatID)
	return context.WithValue(ctx, userIDKey{}, userID)
}

func GetChatID(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(chatIDKey{}).(int64)
	return v, ok
}

func GetUserID(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(userIDKey{}).(int64)
	return v, ok
}

func WithCallbackData(ctx context.Context, data string) context.Context {
	return context.WithValue(ctx, callbackDataKey{}, data)
}

func GetCallbackData(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(callbackDataKey{}).(string)
	return v, ok
}
