package handlers

import (
	"context"
	"errors"
	"os"

	"github.com/BatmanBruc/pdf-batch-bot/internal/contextkeys"
	"github.com/BatmanBruc/pdf-batch-bot/internal/fetch"
	"github.com/BatmanBruc/pdf-batch-bot/internal/messages"
	"github.com/BatmanBruc/pdf-batch-bot/internal/metrics"
	"github.com/BatmanBruc/pdf-batch-bot/internal/normalizer"
	"github.com/BatmanBruc/pdf-batch-bot/internal/utils"
	"github.com/BatmanBruc/pdf-batch-bot/types"
)

func (bh *Handlers) HandleFile(ctx context.Context, req *request) {
	fi, ok := contextkeys.GetFileInfo(ctx, 0)
	if !ok {
		bh.reply(ctx, req, messages.ErrorCannotProcessFile())
		return
	}
	if !fi.IsImage {
		metrics.ImagesTotal.WithLabelValues("unsupported").Inc()
		bh.reply(ctx, req, messages.ErrorUnsupportedMessageType())
		return
	}

	count, err := bh.addImage(ctx, req, fi)
	if err != nil {
		metrics.ImagesTotal.WithLabelValues("rejected").Inc()
		bh.fail(ctx, req, err)
		return
	}
	metrics.ImagesTotal.WithLabelValues("accepted").Inc()
	bh.replyWithKeyboard(ctx, req, messages.ImageAdded(count, bh.sessions.Limits().MaxImages), utils.ActionKeyboard())
}

// addImage admits, downloads and normalizes one image and appends it to the
// chat's session. Any file written along the way is removed on failure.
func (bh *Handlers) addImage(ctx context.Context, req *request, fi contextkeys.FileInfo) (count int, err error) {
	if err := bh.sessions.CheckAdmission(ctx, req.chatID, fi.FileSize); err != nil {
		return 0, err
	}

	scope, err := bh.sessions.Blobs().Session(req.chatID)
	if err != nil {
		return 0, err
	}
	file, err := bh.downloader.Download(ctx, scope, fetch.Request{FileID: fi.FileID, FileName: fi.FileName})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := os.Remove(file.Path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				req.log.Warn().Err(rerr).Str("path", file.Path).Msg("remove rejected image")
			}
		}
	}()

	res, err := normalizer.Normalize(file.Path, bh.cfg.Normalize)
	if err != nil {
		return 0, err
	}
	ref := types.ImageRef{
		FileID:   fi.FileID,
		FileName: fi.FileName,
		Path:     file.Path,
		Size:     res.Bytes,
		Width:    res.Width,
		Height:   res.Height,
	}
	count, err = bh.sessions.AddImage(ctx, req.chatID, ref, fi.FileSize)
	if err != nil {
		return 0, err
	}
	req.log.Debug().Str("file_id", fi.FileID).Int64("bytes", res.Bytes).Bool("resized", res.Resized).Int("count", count).Msg("image added")
	return count, nil
}
